package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/go-go-golems/ai-threads/pkg/models"
	"github.com/spf13/cobra"
)

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the supported models and their pricing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLABEL\tPROVIDER\tINPUT $/1M\tOUTPUT $/1M\tDOCUMENTS")
			for _, m := range models.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.2f\t%t\n",
					m.ID, m.Label, m.Provider, m.Pricing.Input, m.Pricing.Output, m.SupportsDocs)
			}
			return tw.Flush()
		},
	}
}

func newCostCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cost",
		Short: "Show token usage and cost across all threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			st := a.store.GetState()
			ids := make([]string, 0, len(st.Tokens))
			for id := range st.Tokens {
				ids = append(ids, string(id))
			}
			sort.Strings(ids)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MODEL\tINPUT\tOUTPUT\tCOST")
			for _, id := range ids {
				count := st.Tokens[models.ModelID(id)]
				cost := models.Cost(map[models.ModelID]models.TokenCount{models.ModelID(id): count})
				fmt.Fprintf(tw, "%s\t%d\t%d\t$%.4f\n", modelLabel(models.ModelID(id)), count.Input, count.Output, cost)
			}
			fmt.Fprintf(tw, "TOTAL\t\t\t$%.4f\n", st.Cost())
			return tw.Flush()
		},
	}
}
