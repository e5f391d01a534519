package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/aivoicefromthevoid/mira/memory"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newMemoriesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "memories",
		Aliases: []string{"mem"},
		Short:   "Manage Mira's memories",
	}
	cmd.AddCommand(
		newMemoriesListCmd(opts),
		newMemoriesGetCmd(opts),
		newMemoriesAddCmd(opts),
		newMemoriesRmCmd(opts),
		newMemoriesHistoryCmd(opts),
	)
	return cmd
}

func newMemoriesListCmd(opts *options) *cobra.Command {
	var (
		tag, typ, search, orderBy string
		limit, offset             int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			for k, v := range map[string]string{"tag": tag, "type": typ, "search": search, "order_by": orderBy} {
				if v != "" {
					q.Set(k, v)
				}
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}

			c, err := opts.connect()
			if err != nil {
				return err
			}
			page, err := c.Memories(cmd.Context(), q)
			if err != nil {
				return explain("list memories", err)
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), page)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tIMPORTANCE\tDATE\tSUMMARY")
			for _, m := range page.Memories {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\n", m.ID, m.Type, m.Importance, m.Timestamp.Format("2006-01-02"), m.Summary)
			}
			fmt.Fprintf(tw, "\n%d of %d shown\n", len(page.Memories), page.Total)
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "Filter by tag")
	cmd.Flags().StringVar(&typ, "type", "", "Filter by type")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Search content, summary and tags")
	cmd.Flags().StringVar(&orderBy, "order-by", "", "Sort by date or importance")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Max results (server default 50)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many results")
	return cmd
}

func newMemoriesGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			rec, err := c.Memory(cmd.Context(), args[0])
			if err != nil {
				return explain("get memory", err)
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func newMemoriesAddCmd(opts *options) *cobra.Command {
	var (
		typ, content, summary string
		tags                  string
		importance            float64
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := memory.Input{
				Type:    memory.Type(typ),
				Content: content,
				Summary: summary,
				Tags:    lo.Compact(lo.Map(strings.Split(tags, ","), func(t string, _ int) string { return strings.TrimSpace(t) })),
			}
			if cmd.Flags().Changed("importance") {
				in.Importance = &importance
			}

			c, err := opts.connect()
			if err != nil {
				return err
			}
			rec, duplicate, err := c.AddMemory(cmd.Context(), in)
			if err != nil {
				return explain("add memory", err)
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), map[string]any{"memory": rec, "duplicate": duplicate})
			}
			if duplicate {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Similar memory %s exists, importance now %.2f\n", rec.ID, rec.Importance)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Stored %s (importance %.2f)\n", rec.ID, rec.Importance)
			return err
		},
	}
	cmd.Flags().StringVar(&typ, "type", string(memory.TypeThought), "Memory type")
	cmd.Flags().StringVarP(&content, "content", "c", "", "Memory content (required)")
	cmd.Flags().StringVar(&summary, "summary", "", "Summary (derived from content when empty)")
	cmd.Flags().StringVarP(&tags, "tags", "t", "", "Comma-separated tags")
	cmd.Flags().Float64Var(&importance, "importance", 0, "Importance between 0 and 1 (scored from tags when unset)")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func newMemoriesRmCmd(opts *options) *cobra.Command {
	var hard bool
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Archive a memory (or delete it with --hard)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			if err := c.DeleteMemory(cmd.Context(), args[0], !hard); err != nil {
				return explain("remove memory", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", lo.Ternary(hard, "Deleted", "Archived"), args[0])
			return err
		},
	}
	cmd.Flags().BoolVar(&hard, "hard", false, "Delete permanently instead of archiving")
	return cmd
}

func newMemoriesHistoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the write history of the memories document, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			history, err := c.MemoryHistory(cmd.Context())
			if err != nil {
				return explain("memory history", err)
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), history)
			}
			for i, msg := range history {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", i+1, msg)
			}
			return nil
		},
	}
}

