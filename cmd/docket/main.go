// Command docket is the legal practice task tracker: a document store
// server, a sync engine, a reminder scheduler, and a CLI over all of them.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lawdesk/docket/internal/config"
	"github.com/lawdesk/docket/internal/engine"
	"github.com/lawdesk/docket/internal/logging"
	"github.com/lawdesk/docket/internal/store"
	"github.com/lawdesk/docket/internal/store/remote"
	"github.com/lawdesk/docket/internal/store/sqlite"
)

var (
	cfgFile string

	cfg      *config.Config
	log      *zap.SugaredLogger
	logLevel zap.AtomicLevel
)

var rootCmd = &cobra.Command{
	Use:   "docket",
	Short: "Task and case tracking for a legal practice",
	Long: `Docket tracks tasks, hearings, and court cases, synchronizes them
through a document store, and fires reminder notifications when their
reminder or due time arrives.

Run 'docket serve' to host the store and scheduler; the other commands act
as clients against whichever store backend the config selects.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		log, logLevel, err = logging.New(cfg.Logger)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./docket.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore builds the configured store backend.
func openStore() (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return sqlite.Open(cfg.Store.Path, sqlite.Config{PollInterval: cfg.Store.PollInterval, Logger: log})
	case "remote":
		return remote.Open(remote.Config{BaseURL: cfg.Store.RemoteURL}, log)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// startEngine opens the store, starts the sync engine over it, and waits for
// the first snapshot of both collections.
func startEngine(ctx context.Context) (*engine.Engine, store.Store, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	eng := engine.New(st, log, engine.WithProbeConfig(store.ProbeConfig{
		Attempts:  cfg.Connectivity.Attempts,
		BaseDelay: cfg.Connectivity.Backoff,
	}))
	if err := eng.Start(ctx); err != nil {
		st.Close()
		return nil, nil, err
	}

	select {
	case <-eng.Ready():
	case <-time.After(30 * time.Second):
		eng.Stop()
		st.Close()
		return nil, nil, fmt.Errorf("store did not deliver an initial snapshot within 30s")
	case <-ctx.Done():
		eng.Stop()
		st.Close()
		return nil, nil, ctx.Err()
	}
	return eng, st, nil
}
