package cmd

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/picogrid/flock-simulations/pkg/config"
	"github.com/picogrid/flock-simulations/pkg/logger"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage scenario files",
	Long:  `Create, show and validate scenario configuration files`,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default scenario",
	Args:  cobra.MaximumNArgs(1),
	RunE:  initScenario,
}

var configShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Show the resolved scenario",
	Long:  `Show a scenario after defaults and FLOCKSIM_* environment overrides are applied`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  showScenario,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <path>...",
	Short: "Validate scenario files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  validateScenarios,
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "overwrite an existing file without asking")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func initScenario(cmd *cobra.Command, args []string) error {
	path := config.DefaultPaths[0]
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			overwrite := false
			prompt := &survey.Confirm{
				Message: fmt.Sprintf("%s exists. Overwrite?", path),
				Default: false,
			}
			if err := survey.AskOne(prompt, &overwrite); err != nil {
				return err
			}
			if !overwrite {
				logger.Info("Keeping existing file")
				return nil
			}
		}
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), path); err != nil {
		return fmt.Errorf("failed to write scenario: %w", err)
	}

	logger.Successf("Wrote default scenario to %s", path)
	return nil
}

func showScenario(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	cfg, err := config.LoadConfigOrDefault(path)
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}

	fmt.Println(cfg.String())
	return nil
}

func validateScenarios(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		if _, err := config.LoadConfig(path); err != nil {
			logger.Errorf("%s: %v", path, err)
			failed++
			continue
		}
		logger.Successf("%s is valid", path)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed validation", failed, len(args))
	}
	return nil
}
