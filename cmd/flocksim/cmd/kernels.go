package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/picogrid/flock-simulations/pkg/engine"
)

var kernelsCmd = &cobra.Command{
	Use:   "kernels",
	Short: "List kernel slots and registered kernels",
	Long: `List the kernel slots in binding order and every kernel the offload
backend can bind. A scenario's engine.kernels sources and entries name one
kernel per slot, in this order.`,
	RunE: listKernels,
}

func listKernels(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "SLOT\tNAME")
	_, _ = fmt.Fprintln(w, "----\t----")
	for _, slot := range engine.Slots() {
		_, _ = fmt.Fprintf(w, "%d\t%s\n", int(slot), slot)
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "SOURCE\tENTRY\tSLOT")
	_, _ = fmt.Fprintln(w, "------\t-----\t----")
	for _, k := range engine.DefaultKernels.List() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", k.Source, k.Entry, k.Slot)
	}

	return w.Flush()
}
