package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spinup/spinup/internal/config"
	"github.com/spinup/spinup/internal/logger"
)

const defaultConfigPath = "spinup.yaml"

type rootOptions struct {
	configPath string
	logLevel   string

	cfg     *config.Config
	baseDir string
}

// Execute runs the CLI until the command returns or SIGINT/SIGTERM arrives.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer logger.Close()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "spinup",
		Short: "Spinup - LLM-driven action orchestrator",
		Long: `Spinup sends a natural-language query to a language model, which picks
registered actions to run round by round until it declares the task done.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (default $SPINUP_CONFIG or ./spinup.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level from the config")

	cmd.AddCommand(
		newServeCmd(opts),
		newRunCmd(opts),
		newActionsCmd(opts),
		newRunsCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load reads the config file. A missing default config yields an empty
// configuration; a missing explicit one is an error.
func (o *rootOptions) load() error {
	path := o.configPath
	explicit := path != ""
	if !explicit {
		path = os.Getenv("SPINUP_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, os.ErrNotExist):
		if cfg, err = config.Parse([]byte("{}")); err != nil {
			return err
		}
	default:
		return err
	}

	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := logger.Init(cfg.Log); err != nil {
		return err
	}

	o.cfg = cfg
	o.baseDir = filepath.Dir(path)
	return nil
}
