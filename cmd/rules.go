package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/validation"
)

// ruleInfo describes one validation rule.
type ruleInfo struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Category validation.Category `json:"category"`
	Severity model.Severity      `json:"severity"`
}

func ruleInfos(e *validation.Engine) []ruleInfo {
	rules := e.Rules()
	out := make([]ruleInfo, len(rules))
	for i, r := range rules {
		out[i] = ruleInfo{ID: r.ID, Name: r.Name, Category: r.Category, Severity: r.Severity}
	}
	return out
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the validation rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCATEGORY\tSEVERITY\tNAME")
		for _, r := range ruleInfos(validation.NewDefaultEngine()) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Category, r.Severity, r.Name)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
