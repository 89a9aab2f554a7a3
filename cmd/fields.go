package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-cli/internal/model"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List the normalized field dictionary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		state, _ := cmd.Flags().GetString("state")
		scope, _ := cmd.Flags().GetString("scope")

		if state != "" && !model.IsSupportedState(state) {
			return eris.Errorf("unsupported state %q", state)
		}
		formatFields(os.Stdout, selectFields(model.DefaultDictionary(), model.Scope(scope), state))
		return nil
	},
}

// selectFields returns the common fields of scope plus, when state is set,
// that state's extensions. With no state every extension is listed.
func selectFields(dict *model.Dictionary, scope model.Scope, state string) []model.FieldSpec {
	state = model.NormalizeState(state)
	var out []model.FieldSpec
	for _, f := range dict.Fields {
		if scope != "" && f.Scope != scope {
			continue
		}
		if state != "" && f.State != "" && f.State != state {
			continue
		}
		out = append(out, f)
	}
	return out
}

// formatFields writes a tabular list of fields to w.
func formatFields(out io.Writer, fields []model.FieldSpec) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tKIND\tSCOPE\tSTATE\tREQUIRED")
	_, _ = fmt.Fprintln(w, "----\t----\t-----\t-----\t--------")
	for _, f := range fields {
		req := ""
		if f.Required {
			req = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.Name, f.Kind, f.Scope, f.State, req)
	}
	_ = w.Flush()
}

func init() {
	fieldsCmd.Flags().String("state", "", "show extensions for this state only")
	fieldsCmd.Flags().String("scope", "", "provider or inspection")
	rootCmd.AddCommand(fieldsCmd)
}
