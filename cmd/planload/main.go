// Command planload loads planning spreadsheets into an analytical database.
//
// Usage:
//
//	planload run [job...]        run jobs (all when none named), then rebuild derived tables
//	planload preview <table>     print the first rows of a loaded table
//	planload jobs                list configured jobs
//	planload serve               serve the HTTP API and /metrics
//
// Settings come from the environment (and a .env file); see internal/config.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/planload/internal/config"
	"github.com/JonMunkholm/planload/internal/core"
	"github.com/JonMunkholm/planload/internal/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	envFile string
	jobFile string
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError prints the user message for err followed by the technical
// error. Errors without a user message print the technical error alone.
func reportError(w io.Writer, err error) {
	if !core.IsUserFacing(err) {
		fmt.Fprintln(w, "Error:", err)
		return
	}
	fmt.Fprintln(w, "Error:", core.FormatUserError(err))
	fmt.Fprintln(w, "Detail:", err)
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "planload",
		Short:         "Load planning spreadsheets into an analytical database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Environment file to load (overrides existing variables)")
	root.PersistentFlags().StringVarP(&flags.jobFile, "jobs", "j", "", "Job file (default: JOBS_FILE)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log table previews at info level")

	root.AddCommand(
		newRunCmd(flags),
		newPreviewCmd(flags),
		newJobsCmd(flags),
		newServeCmd(flags),
	)
	return root
}

// loadConfig reads the env file and environment, then sets up logging.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	// Overload so the file wins over stale shell variables
	if err := godotenv.Overload(flags.envFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", flags.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.jobFile != "" {
		cfg.Jobs.File = flags.jobFile
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	slog.Debug("configuration loaded", "config", cfg.String())
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "run [job...]",
		Short: "Run jobs in file order, then rebuild derived tables",
		Long: `Runs the named jobs (every job when none is named) in job file order.
The batch stops at the first failing job. Derived tables are rebuilt when
every job they depend on ran.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, flags.verbose)
			if err != nil {
				return err
			}
			defer a.Close()

			names := args
			if group != "" {
				jobs := a.service.Registry().ByGroup(group)
				if len(jobs) == 0 {
					return fmt.Errorf("%w: no jobs in group %q", core.ErrUnknownJob, group)
				}
				for _, j := range jobs {
					names = append(names, j.Name)
				}
			}

			batch, err := a.service.RunJobs(ctx, names)
			if batch != nil {
				printBatch(cmd.OutOrStdout(), batch)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&group, "group", "g", "", "Run every job in this group")
	return cmd
}

func newPreviewCmd(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "preview <table>",
		Short: "Print the first rows of a loaded table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, flags.verbose)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := a.service.Preview(ctx, args[0], limit)
			if err != nil {
				return err
			}
			printTable(cmd.OutOrStdout(), t)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Rows to show (default: RUN_PREVIEW_LIMIT)")
	return cmd
}

func newJobsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List configured jobs and derived tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			reg, err := loadJobs(cfg)
			if err != nil {
				return err
			}
			printJobs(cmd.OutOrStdout(), reg)
			return nil
		},
	}
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, flags.verbose)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.serve(ctx)
		},
	}
}
