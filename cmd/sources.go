package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/provider-cli/internal/source"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources [name]",
	Short: "List configured export sources, or show one mapping",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := initRegistry()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			d, err := reg.Get(args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close() //nolint:errcheck
			return enc.Encode(d)
		}
		formatSources(os.Stdout, reg.All())
		return nil
	},
}

// formatSources writes a tabular list of sources to w.
func formatSources(out io.Writer, defs []*source.Definition) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSTATE\tFORMAT\tFIELDS\tLOCATION")
	_, _ = fmt.Fprintln(w, "----\t-----\t------\t------\t--------")
	for _, d := range defs {
		loc := d.Location
		if loc == "" {
			loc = "(local file)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", d.Name, d.State, d.Format, len(d.Fields), loc)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
