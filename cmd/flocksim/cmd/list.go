package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/picogrid/flock-simulations/pkg/simulation"
	"github.com/picogrid/flock-simulations/pkg/utils"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available scenarios and simulations",
	Long:  `List all scenario files in the scenario directory and the registered simulations`,
	RunE:  listScenarios,
}

func listScenarios(cmd *cobra.Command, args []string) error {
	scenarios, err := utils.DiscoverScenarios(viper.GetString("scenario_dir"))
	if err != nil {
		return fmt.Errorf("failed to discover scenarios: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	if len(scenarios) == 0 {
		_, _ = fmt.Fprintln(w, "No scenarios found")
	} else {
		_, _ = fmt.Fprintln(w, "NAME\tFLOCKS\tAGENTS\tBACKEND\tDESCRIPTION")
		_, _ = fmt.Fprintln(w, "----\t------\t------\t-------\t-----------")

		for _, info := range scenarios {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s/%s\t%s\n",
				info.Config.Simulation.Name,
				len(info.Config.Flocks),
				info.Agents(),
				info.Config.Engine.Backend,
				info.Config.Engine.Device,
				info.Config.Simulation.Description,
			)
		}
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "SIMULATION\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "----------\t-----------")
	for _, name := range simulation.DefaultRegistry.List() {
		sim, err := simulation.DefaultRegistry.Get(name)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", name, sim.Description())
	}

	return w.Flush()
}
