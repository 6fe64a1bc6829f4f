package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/webtabs/internal/appconfig"
	"pkt.systems/webtabs/internal/eventbus"
	"pkt.systems/webtabs/schema"
)

func newOpenCmd() *cobra.Command {
	var cfgPath string
	var engineName string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "open <url>",
		Short: "Load a page once and print its title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := schema.NormalizeInputURL(args[0])
			if err != nil {
				return err
			}
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if engineName != "" {
				cfg.Browser.Engine = engineName
			}
			cfg.Browser.StartURL = target
			snap, err := loadOnce(cmd.Context(), cfg, timeout)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", snap.Title, snap.URL)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&engineName, "engine", "", "override browser.engine (chrome or stub)")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "how long to wait for the page")
	return cmd
}

// loadOnce starts a browser on cfg.Browser.StartURL, waits for the first
// load to settle and shuts everything down again.
func loadOnce(ctx context.Context, cfg appconfig.Config, timeout time.Duration) (schema.TabSnapshot, error) {
	server, err := buildServer(ctx, cfg)
	if err != nil {
		return schema.TabSnapshot{}, err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Stop(stopCtx)
	}()
	events, unsubscribe := server.Bus().Subscribe()
	defer unsubscribe()
	if err := server.Start(ctx); err != nil {
		return schema.TabSnapshot{}, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := waitIdle(waitCtx, events); err != nil {
		return schema.TabSnapshot{}, err
	}
	snap, err := server.Browser().CurrentTab(ctx)
	if err != nil {
		return schema.TabSnapshot{}, err
	}
	if snap.ErrorPage != "" {
		return snap, fmt.Errorf("load %s: %s", snap.URL, snap.ErrorPage)
	}
	return snap, nil
}

// waitIdle returns once a load settles. Error notices end the wait early.
func waitIdle(ctx context.Context, events <-chan eventbus.Event) error {
	sawLoading := false
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for page: %w", ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return errors.New("event stream closed")
			}
			if ev.Type == eventbus.EventNotice && ev.Notice.Level == schema.NoticeError {
				return errors.New(ev.Notice.Message)
			}
			if ev.Type != eventbus.EventLoad {
				continue
			}
			switch ev.Load.State {
			case schema.LoadStateLoading:
				sawLoading = true
			case schema.LoadStateIdle:
				if sawLoading {
					return nil
				}
			}
		}
	}
}
