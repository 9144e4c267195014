package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lawdesk/docket/internal/config"
	"github.com/lawdesk/docket/internal/engine"
	"github.com/lawdesk/docket/internal/logging"
	"github.com/lawdesk/docket/internal/model"
	"github.com/lawdesk/docket/internal/notify"
	"github.com/lawdesk/docket/internal/scheduler"
	"github.com/lawdesk/docket/internal/server"
	"github.com/lawdesk/docket/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the document store, sync engine, and reminder scheduler",
	Long: `Serve runs the full daemon: the document API and WebSocket streams,
the sync engine over the configured store, and the reminder scheduler.
Reminder notifications are broadcast to connected WebSocket clients.

The remote backend makes no sense here; serve hosts the store that remote
clients connect to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Store.Backend == "remote" {
			return fmt.Errorf("serve needs a local store backend (memory or sqlite), not remote")
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		srv := server.New(server.Config{
			Addr:         cfg.Server.Addr,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}, st, log)

		eng := engine.New(st, log, engine.WithProbeConfig(store.ProbeConfig{
			Attempts:  cfg.Connectivity.Attempts,
			BaseDelay: cfg.Connectivity.Backoff,
		}))
		if err := eng.Start(ctx); err != nil {
			return err
		}
		defer eng.Stop()

		var notifier scheduler.Notifier = noopNotifier{}
		if cfg.Notifications.Enabled {
			dispatcher := notify.New(srv.Hub(), log, notify.WithIcon(cfg.Notifications.Icon))
			notifier = dispatcher

			// Clients can snooze or dismiss a reminder from their end.
			srv.Hub().OnAction(func(action, taskID string) {
				t, ok := eng.Task(taskID)
				switch {
				case action == "snooze" && ok:
					dispatcher.Snooze(t, cfg.Scheduler.Snooze)
				case action == "dismiss":
					dispatcher.Cancel(taskID)
				}
			})
		}
		sched := scheduler.New(eng, notifier, cfg.Scheduler.Interval, log)

		// Config reload only adjusts log verbosity; everything else needs a
		// restart.
		if cfgFile != "" {
			watcher, err := config.NewWatcher(cfgFile, func(next *config.Config) {
				if err := logging.SetLevel(logLevel, next.Logger.Level); err != nil {
					log.Warnw("config reload", "error", err)
					return
				}
				log.Infow("log level updated", "level", next.Logger.Level)
			}, func(err error) {
				log.Warnw("config reload failed", "error", err)
			})
			if err != nil {
				return err
			}
			if err := watcher.Start(); err != nil {
				return err
			}
			defer watcher.Stop()
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()
		go sched.Run(ctx)

		select {
		case <-eng.Ready():
			log.Infow("initial sync complete",
				"tasks", len(eng.Tasks()), "cases", len(eng.Cases()))
		case <-ctx.Done():
		}

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// noopNotifier swallows deliveries when notifications are disabled. The
// scheduler still marks tasks notified so enabling later does not replay
// every historical reminder.
type noopNotifier struct{}

func (noopNotifier) NotifyNow(t model.Task) error { return nil }

func init() {
	rootCmd.AddCommand(serveCmd)
}
