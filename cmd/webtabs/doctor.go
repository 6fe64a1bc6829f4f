package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/webtabs/internal/appconfig"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var probeURL string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run webtabs diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath)
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}

			kv, store, err := openHistory(cfg, logger)
			if err != nil {
				return err
			}
			entries := store.Len()
			_ = kv.Close()
			logger.Info("doctor history ok", "backend", cfg.History.Backend, "entries", entries)

			if err := checkWritable(cfg.Downloads.Dir); err != nil {
				return fmt.Errorf("download dir: %w", err)
			}
			logger.Info("doctor downloads ok", "dir", cfg.Downloads.Dir)

			// The probe must not leave a visit behind.
			probe := cfg
			probe.History.Backend = "memory"
			probe.Browser.StartURL = probeURL
			snap, err := loadOnce(cmd.Context(), probe, timeout)
			if err != nil {
				return fmt.Errorf("renderer probe: %w", err)
			}
			logger.Info("doctor renderer ok", "engine", cfg.Browser.Engine, "url", snap.URL, "title", snap.Title)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&probeURL, "url", "about:blank", "page loaded by the renderer probe")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "renderer probe timeout")
	return cmd
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(filepath.Clean(name))
}
