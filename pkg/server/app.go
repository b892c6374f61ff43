package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"AdaptiveEnsemble/internal/usecase"
	"AdaptiveEnsemble/pkg/config"
	xhttp "AdaptiveEnsemble/pkg/http"
	pkgkafka "AdaptiveEnsemble/pkg/kafka"
	applogger "AdaptiveEnsemble/pkg/logger"
)

// App owns the wired core and its infrastructure for one process.
type App struct {
	cfg      *config.Config
	logger   *applogger.Logger
	core     *usecase.Core
	frames   *usecase.FrameLoader
	consumer *pkgkafka.Consumer
	outcomes *usecase.OutcomeHandler
	http     *xhttp.Server
}

// New creates a new App instance with all dependencies. consumer and httpSrv
// may be nil when the matching feature is disabled.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	core *usecase.Core,
	frames *usecase.FrameLoader,
	consumer *pkgkafka.Consumer,
	outcomes *usecase.OutcomeHandler,
	httpSrv *xhttp.Server,
) *App {
	return &App{
		cfg:      cfg,
		logger:   logger,
		core:     core,
		frames:   frames,
		consumer: consumer,
		outcomes: outcomes,
		http:     httpSrv,
	}
}

func (a *App) Config() *config.Config       { return a.cfg }
func (a *App) Logger() *applogger.Logger    { return a.logger }
func (a *App) Core() *usecase.Core          { return a.core }
func (a *App) Frames() *usecase.FrameLoader { return a.frames }

// Run serves the HTTP API and the outcome consumer until ctx is cancelled or
// the process receives SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	if a.http != nil {
		if err := a.http.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			return a.http.Stop(context.Background())
		})
	}
	if a.consumer != nil && a.outcomes != nil {
		a.consumer.RegisterHandler(a.outcomes)
		a.logger.Info("outcome consumer started", applogger.String("topic", a.outcomes.Topic()))
		g.Go(func() error { return a.consumer.Run(ctx) })
	}
	if a.http == nil && a.consumer == nil {
		a.logger.Warn("nothing to serve: enable metrics or kafka")
		return nil
	}

	err := g.Wait()
	a.logger.Info("shutdown complete")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
