package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/webtabs/internal/appconfig"
	"pkt.systems/webtabs/schema"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	urlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func newHistoryCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and edit browsing history",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List visits, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			kv, store, err := openHistory(cfg, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			defer kv.Close()
			entries := store.List()
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			return renderHistory(cmd.OutOrStdout(), entries)
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n entries")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every visit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			kv, store, err := openHistory(cfg, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			defer kv.Close()
			n := store.Len()
			if err := store.Clear(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries\n", n)
			return err
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <timestamp> <url>",
		Short: "Remove one visit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("timestamp: %w", err)
			}
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			kv, store, err := openHistory(cfg, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			defer kv.Close()
			deleted, err := store.Delete(ts, args[1])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("no visit to %s at %d", args[1], ts)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return err
		},
	}

	cmd.AddCommand(listCmd, clearCmd, deleteCmd)
	return cmd
}

func renderHistory(out io.Writer, entries []schema.HistoryEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, headerStyle.Render("No history"))
		return err
	}
	if _, err := fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d visit(s)", len(entries)))); err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, entry := range entries {
		when := time.UnixMilli(entry.Timestamp).Format("2006-01-02 15:04:05")
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			entry.Timestamp,
			dateStyle.Render(when),
			titleStyle.Render(entry.Title),
			urlStyle.Render(entry.URL),
		)
	}
	return w.Flush()
}
