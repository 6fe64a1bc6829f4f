package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/webtabs/internal/appconfig"
	"pkt.systems/webtabs/internal/download"
	"pkt.systems/webtabs/schema"
)

func newDownloadsCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "downloads",
		Short: "List or fetch downloads",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List files in the download directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			records, err := download.ListDir(cfg.Downloads.Dir)
			if err != nil {
				return err
			}
			return renderDownloads(cmd.OutOrStdout(), records)
		},
	}

	var name string
	var timeout time.Duration
	getCmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Fetch a URL into the download directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			manager, err := newDownloads(cfg, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			req := schema.DownloadRequest{URL: args[0], UserAgent: cfg.Browser.UserAgent}
			if name != "" {
				req.ContentDisposition = fmt.Sprintf("attachment; filename=%q", name)
			}
			record, err := manager.Fetch(ctx, req)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", record.Path, download.FormatSize(record.Size))
			return err
		},
	}
	getCmd.Flags().StringVar(&name, "name", "", "file name to save as")
	getCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall transfer timeout")

	cmd.AddCommand(listCmd, getCmd)
	return cmd
}

func renderDownloads(out io.Writer, records []schema.DownloadRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, headerStyle.Render("No downloads"))
		return err
	}
	if _, err := fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d file(s)", len(records)))); err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, rec := range records {
		when := time.UnixMilli(rec.Modified).Format("2006-01-02 15:04")
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
			titleStyle.Render(rec.Name),
			download.FormatSize(rec.Size),
			dateStyle.Render(when),
		)
	}
	return w.Flush()
}
