package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/resticd/internal/apiclient"
	"github.com/flemzord/resticd/internal/config"
	"github.com/flemzord/resticd/internal/jobs"
	"github.com/flemzord/resticd/internal/mcpserver"
)

// apiFlags locate the API of a running daemon.
type apiFlags struct {
	addr  string
	token string
}

func (f *apiFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.addr, "api", "", "API address (defaults to api.bind from the configuration)")
	cmd.PersistentFlags().StringVar(&f.token, "token", "", "API bearer token (defaults to $RESTICD_TOKEN, then api.bearer_token)")
}

// client resolves the address and token from the flags, the environment
// and finally the configuration file.
func (f *apiFlags) client(g *globalFlags) *apiclient.Client {
	addr, token := f.addr, cmp.Or(f.token, os.Getenv("RESTICD_TOKEN"))
	if addr == "" || token == "" {
		if cfg, _, err := loadConfig(g.configPath); err == nil {
			addr = cmp.Or(addr, cfg.API.Bind)
			token = cmp.Or(token, cfg.API.BearerToken)
		}
	}
	return apiclient.New(cmp.Or(addr, config.DefaultAPIBind), token)
}

func jobsCmd(g *globalFlags) *cobra.Command {
	f := &apiFlags{}
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger jobs of a running daemon",
	}
	f.register(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := f.client(g).Jobs(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Show a job definition with credentials masked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := f.client(g).Job(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "queue <name>",
		Short: "Run a job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.client(g).Queue(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %q queued\n", args[0])
			return nil
		},
	})

	var limit int
	runs := &cobra.Command{
		Use:   "runs [name]",
		Short: "Show recent runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			list, err := f.client(g).Runs(cmd.Context(), name, limit)
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), list)
		},
	}
	runs.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	cmd.AddCommand(runs)

	return cmd
}

func printRuns(w io.Writer, runs []*jobs.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tJOB\tSOURCE\tSTATUS\tDURATION\tSTEPS")
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		steps := ""
		for i, s := range r.Steps {
			if i > 0 {
				steps += " "
			}
			steps += string(s.Step) + "=" + string(s.Status)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Job, r.Source, r.Status, duration, steps)
	}
	return tw.Flush()
}

func mcpCmd(g *globalFlags) *cobra.Command {
	f := &apiFlags{}
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the job API as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := mcpserver.New(f.client(g), version)
			return mcpserver.Serve(cmd.Context(), s, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	f.register(cmd)
	return cmd
}
