package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/jsflow/pkg/checks"
)

// RuleOutput describes a rule in the rules output.
type RuleOutput struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func newRulesCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the available rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rules []RuleOutput
			for _, d := range checks.Default().Definitions() {
				rules = append(rules, RuleOutput{Key: d.Key, Name: d.Name, Description: d.Description})
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rules)
			}

			st := newStyles(cmd.OutOrStdout())
			for _, r := range rules {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-28s %s\n", st.rule.Render(r.Key), r.Name, r.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}
