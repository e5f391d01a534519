package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newModelsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect the model catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List free models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			models, err := c.FreeModels(cmd.Context())
			if err != nil {
				return explain("list models", err)
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), models)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPROVIDER\tCONTEXT")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", m.ID, m.Provider, m.ContextLength)
			}
			return tw.Flush()
		},
	}, &cobra.Command{
		Use:   "select",
		Short: "Show the model \"auto\" resolves to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			m, err := c.SelectModel(cmd.Context())
			if err != nil {
				return explain("select model", err)
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), m)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), m.ID)
			return err
		},
	}, &cobra.Command{
		Use:   "stats",
		Short: "Count models by price, provider and capability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			stats, err := c.ModelStats(cmd.Context())
			if err != nil {
				return explain("model stats", err)
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	})
	return cmd
}
