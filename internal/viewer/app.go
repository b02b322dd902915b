// Package viewer implements the auditview command line: offline filtering,
// reporting and a read-only HTTP view of an event log.
package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xA1M/sentinel-audit/internal/api"
	"github.com/0xA1M/sentinel-audit/internal/config"
	"github.com/0xA1M/sentinel-audit/internal/logview"
)

const (
	helpOutput  = "Inspect the JSON line event log written by auditd."
	defaultAddr = "127.0.0.1:8081"
)

type options struct {
	LogPath        string
	TrustedProxies []string
	Log            *zap.Logger
}

// NewCommand returns the root auditview command. Defaults come from the
// environment so AUDIT_LOG_PATH applies to every subcommand.
func NewCommand(ctx context.Context, log *zap.Logger) *cobra.Command {
	if log == nil {
		log = zap.NewNop()
	}
	env := config.FromEnv()
	opts := &options{LogPath: env.LogPath, TrustedProxies: env.TrustedProxies, Log: log}

	cmd := &cobra.Command{
		Use:           "auditview",
		Short:         helpOutput,
		Long:          helpOutput,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.LogPath, "log-path", opts.LogPath, "Event log file to read")

	addr := env.HTTPAddr
	if addr == "" {
		addr = defaultAddr
	}

	cmd.AddCommand(
		newFilterCommand(opts),
		newReportCommand(opts),
		newServeCommand(ctx, opts, addr),
	)
	return cmd
}

func newFilterCommand(opts *options) *cobra.Command {
	var filter logview.Filter

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Print log lines containing a keyword and, optionally, a level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(opts.LogPath)
			if err != nil {
				return fmt.Errorf("failed to open log: %w", err)
			}
			defer file.Close()

			matched, err := logview.FilterLines(file, filter, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d matching lines\n", matched)
			return nil
		},
	}

	cmd.Flags().StringVarP(&filter.Keyword, "keyword", "k", "", "Substring every printed line must contain")
	cmd.Flags().StringVarP(&filter.Level, "level", "l", logview.AllLevels, "Level name lines must contain, or All")
	return cmd
}

func newReportCommand(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Count events by level and by hour",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(opts.LogPath)
			if err != nil {
				return fmt.Errorf("failed to open log: %w", err)
			}
			defer file.Close()

			report, err := logview.BuildReport(file)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return report.WriteText(cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func newServeCommand(ctx context.Context, opts *options, addr string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the log filter and report over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			router := api.Router(api.Deps{
				Service:        "auditview",
				LogPath:        opts.LogPath,
				TrustedProxies: opts.TrustedProxies,
			}, opts.Log)

			opts.Log.Info("Serving event log", zap.String("path", opts.LogPath))
			return api.Serve(ctx, addr, router, opts.Log)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", addr, "Listen address")
	cmd.Flags().StringSliceVar(&opts.TrustedProxies, "trusted-proxy", opts.TrustedProxies, "Proxy address whose X-Forwarded-For is honoured, repeatable")
	return cmd
}
