// serve.go — The serve command: wires capture, persistence, the LLM flows and the
// HTTP server, then runs the background loops until a signal arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/EmreDinc10/bugscribe/internal/browser"
	"github.com/EmreDinc10/bugscribe/internal/capture"
	"github.com/EmreDinc10/bugscribe/internal/config"
	"github.com/EmreDinc10/bugscribe/internal/ingest"
	"github.com/EmreDinc10/bugscribe/internal/llm"
	"github.com/EmreDinc10/bugscribe/internal/persistence"
	"github.com/EmreDinc10/bugscribe/internal/report"
	"github.com/EmreDinc10/bugscribe/internal/scheduler"
	"github.com/EmreDinc10/bugscribe/internal/server"
	"github.com/EmreDinc10/bugscribe/internal/state"
)

const finalSaveTimeout = 5 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the telemetry daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			config.Watch(opts.v, opts.logger, config.ApplyLogLevel(opts.level))
			return runServe(ctx, opts.cfg, opts.logger)
		},
	}

	f := cmd.Flags()
	f.String("host", "127.0.0.1", "listen host")
	f.Int("port", server.DefaultPort, "listen port")
	f.String("extension-id", "", "only accept this browser extension's origin")
	f.String("model", llm.DefaultModel, "chat-completions model")
	f.String("base-url", llm.DefaultBaseURL, "chat-completions API base URL")
	f.Bool("ephemeral", false, "keep state in memory only")
	f.String("db", "", "SQLite database path (default is in the state directory)")
	f.String("debugger-url", "", "DevTools endpoint for screenshots instead of the extension relay")
	f.Bool("capture", true, "take periodic screenshots of the active tab")
	f.Bool("log-json", false, "log as JSON")
	return cmd
}

// openStore returns the configured snapshot store.
func openStore(cfg *config.Config) (persistence.Store, error) {
	if cfg.Persistence.Ephemeral {
		return persistence.NewMemoryStore(), nil
	}
	path := cfg.Persistence.Path
	if path == "" {
		if _, err := state.EnsureRoot(); err != nil {
			return nil, err
		}
		p, err := state.DatabaseFile()
		if err != nil {
			return nil, err
		}
		path = p
	}
	store, err := persistence.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

// daemon is everything serve runs.
type daemon struct {
	capture   *capture.Capture
	manager   *persistence.Manager
	scheduler *scheduler.CaptureScheduler
	server    *server.Server
	closers   []func() error
}

func newDaemon(cfg *config.Config, store persistence.Store, logger *zap.Logger) *daemon {
	d := &daemon{capture: capture.NewCapture()}
	d.manager = persistence.NewManager(store, d.capture, logger,
		persistence.WithRetention(cfg.Persistence.Retention))

	tabs := browser.NewTabTracker()
	deps := server.Deps{Capture: d.capture, Manager: d.manager}

	var capturer scheduler.Capturer
	if cfg.Capture.DebuggerURL != "" {
		rc := browser.NewRodCapturer(cfg.Capture.DebuggerURL, tabs, logger)
		d.closers = append(d.closers, rc.Close)
		capturer = rc
	} else {
		relay := browser.NewRelayCapturer(logger)
		deps.Commands = relay
		capturer = relay
	}
	d.scheduler = scheduler.NewCaptureScheduler(tabs, capturer, d.capture, logger,
		scheduler.WithPeriod(cfg.Capture.Interval))

	routerOpts := []ingest.Option{ingest.WithSaver(d.manager), ingest.WithTabObserver(tabs)}
	if cfg.Capture.Enabled {
		routerOpts = append(routerOpts, ingest.WithCaptureControl(d.scheduler))
		deps.Control = d.scheduler
	}
	deps.Router = ingest.NewRouter(d.capture, logger, routerOpts...)

	client := llm.NewOpenAIClient(cfg.LLMClientConfig(), logger)
	deps.Drafter = report.NewDrafter(d.capture, client, logger)
	deps.Assistant = report.NewAssistant(d.capture, client, d.manager, logger)

	d.server = server.New(deps, logger,
		server.WithExtensionID(cfg.Server.ExtensionID),
		server.WithVersion(version))
	return d
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close store failed", zap.Error(err))
		}
	}()

	d := newDaemon(cfg, store, logger)
	defer d.close(logger)

	if _, err := d.manager.Load(ctx); err != nil {
		logger.Warn("starting without restored snapshot", zap.Error(err))
	}
	if n, err := d.manager.Cleanup(ctx, time.Now()); err != nil {
		logger.Warn("startup cleanup failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("expired keyed state removed", zap.Int("count", n))
	}

	if cfg.LLM.APIKey == "" {
		logger.Warn("no LLM API key configured; report drafting will fail until one is set")
	}

	err = d.run(ctx, cfg, logger)

	saveCtx, cancel := context.WithTimeout(context.Background(), finalSaveTimeout)
	defer cancel()
	if saveErr := d.manager.Save(saveCtx); saveErr != nil {
		logger.Warn("final snapshot save failed", zap.Error(saveErr))
	}
	logger.Info("stopped")
	return err
}

func (d *daemon) run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.server.ListenAndServe(gctx, cfg.Address()) })
	g.Go(func() error {
		return scheduler.RunEvery(gctx, cfg.Persistence.SweepInterval, "sweep", logger, func(context.Context) {
			network, console := d.capture.Sweep(time.Now())
			if network+console > 0 {
				logger.Debug("window sweep", zap.Int("network", network), zap.Int("console", console))
			}
		})
	})
	g.Go(func() error {
		return scheduler.RunEvery(gctx, cfg.Persistence.SnapshotInterval, "snapshot", logger, func(ctx context.Context) {
			_ = d.manager.Save(ctx)
		})
	})
	g.Go(func() error { return d.manager.ServeSaveRequests(gctx) })
	g.Go(func() error { return d.scheduler.Run(gctx) })

	logger.Info("bugscribe started",
		zap.String("version", version),
		zap.String("addr", cfg.Address()),
		zap.Bool("capture", cfg.Capture.Enabled),
		zap.Bool("ephemeral", cfg.Persistence.Ephemeral))
	return g.Wait()
}

func (d *daemon) close(logger *zap.Logger) {
	for _, c := range d.closers {
		if err := c(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}
