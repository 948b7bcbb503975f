// Package main is the entry point for the resticd CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/resticd/internal/restic"
	"github.com/flemzord/resticd/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func (g *globalFlags) params() app.RunParams {
	return app.RunParams{
		ConfigPath: g.configPath,
		Version:    version,
		Commit:     commit,
		Date:       date,
		LogLevel:   g.logLevel,
	}
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "resticd",
		Short:         "Scheduled restic backups with hot-reloaded configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides log_level")

	root.AddCommand(
		versionCmd(),
		runCmd(g),
		serviceCmd(g),
		configCmd(g),
		jobsCmd(g),
		resticVersionCmd(g),
		mcpCmd(g),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "resticd %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func runCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler in the foreground",
		Long: "Run the scheduler until interrupted. The configuration file is watched " +
			"and reloaded on change; SIGHUP forces a reload.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := g.params()
			if !app.Interactive() {
				svc, err := app.NewService(params)
				if err != nil {
					return err
				}
				return svc.Run()
			}
			params.Signals = true
			return app.Run(cmd.Context(), params)
		},
	}
}

func serviceCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the resticd OS service",
	}
	for _, action := range app.ServiceActions {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: "Service " + action,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := app.ControlService(g.params(), action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			},
		})
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := app.ServiceStatus(g.params())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		},
	})
	return cmd
}

func resticVersionCmd(g *globalFlags) *cobra.Command {
	var binary string
	cmd := &cobra.Command{
		Use:   "restic-version",
		Short: "Print the version of the restic binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if binary == "" {
				if cfg, _, err := loadConfig(g.configPath); err == nil {
					binary = cfg.Restic.Binary
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client := restic.New(restic.Config{
				Binary: binary,
				Logger: slog.New(slog.DiscardHandler),
			})
			v, err := client.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restic %s compiled with %s on %s/%s\n", v.Version, v.GoVersion, v.GoOS, v.GoArch)
			return nil
		},
	}
	cmd.Flags().StringVar(&binary, "binary", "", "restic binary (defaults to restic.binary from the configuration)")
	return cmd
}
