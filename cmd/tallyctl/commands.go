package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/tally/internal/api"
	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/internal/infrastructure"
)

type rootOptions struct {
	configPath   string
	explorations string
	timeout      time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "tallyctl",
		Short:        "Operate the tally answer log, classifiers, and statistics",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", config.BaseConfigFile, "path to config.toml")
	root.PersistentFlags().StringVar(&opts.explorations, "explorations", "", "exploration YAML directory (overrides stats.explorations_dir)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall command deadline")

	root.AddCommand(
		newAggregateCmd(opts),
		newTrainCmd(opts),
		newBenchmarkCmd(),
		newValidateClassifierCmd(),
	)
	return root
}

// session is a started infrastructure with the Postgres-backed domain.
type session struct {
	infra  *infrastructure.Infrastructure
	domain *api.Domain
}

func openSession(opts *rootOptions) (*session, error) {
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.explorations != "" {
		cfg.Stats.ExplorationsDir = opts.explorations
	}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := infra.Start(); err != nil {
		return nil, err
	}
	infra.Lifecycle.WaitForStartup()

	s := &session{infra: infra}
	if !infra.Database.Ready() {
		s.close()
		return nil, errors.New("database unreachable")
	}

	runtime, err := api.NewRuntime(cfg, infra)
	if err != nil {
		s.close()
		return nil, err
	}
	s.domain, err = api.NewDomain(cfg, runtime, api.PostgresStores(infra.Database.Connection()))
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	if err := s.infra.Lifecycle.Shutdown(30 * time.Second); err != nil {
		s.infra.Logger.Warn("shutdown incomplete", "error", err)
	}
	s.infra.Close()
}

func commandContext(cmd *cobra.Command, opts *rootOptions) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), opts.timeout)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
