package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/flemzord/resticd/internal/config"
	"github.com/flemzord/resticd/internal/cron"
)

var now = time.Now

// loadConfig locates, loads and validates the configuration.
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.Locate(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(configCheckCmd(g), configPathCmd(g), configInitCmd())
	return cmd
}

func configCheckCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit := g.configPath
			if len(args) == 1 {
				explicit = args[0]
			}
			cfg, path, err := loadConfig(explicit)
			if err != nil {
				return err
			}
			printCheck(cmd.OutOrStdout(), path, cfg)
			return nil
		},
	}
}

func printCheck(w io.Writer, path string, cfg *config.Config) {
	fmt.Fprintf(w, "Configuration OK: %s (%d jobs)\n", path, len(cfg.Jobs))
	for _, name := range cfg.JobNames() {
		job := cfg.Jobs[name]
		line := fmt.Sprintf("  %s  %q", name, job.Cron)
		if sched, err := cron.ParseSchedule(job.Cron); err == nil {
			line += "  next: " + sched.Next(now()).Format("2006-01-02 15:04 MST")
		}
		fmt.Fprintln(w, line)
	}
}

func configPathCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file resticd would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.Locate(g.configPath)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Searched:")
				for _, p := range config.SearchPaths() {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", p)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

// initAnswers holds the answers of the config init wizard.
type initAnswers struct {
	JobName     string
	Cron        string
	RepoURL     string
	PasswordVar string
	Sources     string
	FixedDrives bool
	KeepDaily   string
	EnableAPI   bool
	HistoryPath string
}

func defaultAnswers() initAnswers {
	return initAnswers{
		JobName:     "daily",
		Cron:        "0 2 * * *",
		PasswordVar: "RESTIC_PASSWORD",
		KeepDaily:   "7",
		EnableAPI:   true,
		HistoryPath: "resticd.db",
	}
}

// config turns the answers into a configuration. The repository password
// is referenced through an environment variable, never written out.
func (a initAnswers) config() (*config.Config, error) {
	cfg := config.Default()
	cfg.API.Enabled = a.EnableAPI
	cfg.History.Path = strings.TrimSpace(a.HistoryPath)

	job := config.Job{
		Cron: strings.TrimSpace(a.Cron),
		Repository: config.Repository{
			URL:      strings.TrimSpace(a.RepoURL),
			Password: "${" + strings.TrimSpace(a.PasswordVar) + "}",
		},
		Backup: config.BackupStep{
			Sources:           splitList(a.Sources),
			SourceFixedDrives: a.FixedDrives,
		},
	}
	if s := strings.TrimSpace(a.KeepDaily); s != "" && s != "0" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("keep daily: %q is not a positive number", s)
		}
		job.Forget.Enabled = true
		job.Forget.KeepDaily = &n
		job.Forget.Prune = true
	}
	cfg.Jobs[strings.TrimSpace(a.JobName)] = job

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}

func configInitCmd() *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			a := defaultAnswers()
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().Title("Job name").Value(&a.JobName).Validate(notEmpty("job name")),
					huh.NewInput().Title("Schedule").Description("5-field cron expression").Value(&a.Cron).
						Validate(func(s string) error {
							_, err := cron.ParseSchedule(strings.TrimSpace(s))
							return err
						}),
					huh.NewInput().Title("Repository").Description("e.g. /srv/restic or s3:s3.amazonaws.com/bucket").
						Value(&a.RepoURL).Validate(notEmpty("repository")),
					huh.NewInput().Title("Password variable").Description("Environment variable holding the repository password").
						Value(&a.PasswordVar).Validate(notEmpty("password variable")),
				),
				huh.NewGroup(
					huh.NewInput().Title("Sources").Description("Comma-separated paths").Value(&a.Sources),
					huh.NewConfirm().Title("Also back up every fixed drive?").Value(&a.FixedDrives),
					huh.NewInput().Title("Daily snapshots to keep").Description("0 disables forget and prune").Value(&a.KeepDaily),
				),
				huh.NewGroup(
					huh.NewConfirm().Title("Enable the local HTTP API?").Value(&a.EnableAPI),
					huh.NewInput().Title("Run history database").Description("Empty disables history").Value(&a.HistoryPath),
				),
			)
			if err := form.Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return errors.New("aborted")
				}
				return err
			}

			cfg, err := a.config()
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", config.FileName, "File to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
