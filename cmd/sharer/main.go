package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/ScreenShare/internal/adapters/http"
	"github.com/dkeye/ScreenShare/internal/adapters/rtc"
	sig "github.com/dkeye/ScreenShare/internal/adapters/signal"
	"github.com/dkeye/ScreenShare/internal/adapters/storage"
	"github.com/dkeye/ScreenShare/internal/app/conference"
	"github.com/dkeye/ScreenShare/internal/app/machine"
	"github.com/dkeye/ScreenShare/internal/app/membership"
	"github.com/dkeye/ScreenShare/internal/app/orch"
	"github.com/dkeye/ScreenShare/internal/config"
	"github.com/dkeye/ScreenShare/internal/core"
	"github.com/dkeye/ScreenShare/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("sharer stopped")
		os.Exit(1)
	}
	log.Info().Msg("sharer exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	kv, err := storage.Open(cfg.StoragePath)
	if err != nil {
		return err
	}
	defer kv.Close()

	loop := core.NewLoop()
	store := membership.NewStore(domain.Point{X: cfg.Room.Width, Y: cfg.Room.Height})

	client := sig.NewClient(sig.Options{
		URL:         cfg.SignalURL,
		DialTimeout: cfg.DialTimeout,
		PingPeriod:  cfg.PingPeriod,
	})
	media := rtc.NewMedia(rtc.Config{ICEServers: cfg.ICEServers})
	limiter := sig.NewCommandRateLimiter(cfg.CommandRate.Limit, cfg.CommandRate.Interval)
	rt := sig.NewRuntime(client, media, limiter)

	svc := conference.New(ctx, rt, store, kv, loop.Post, conference.Options{
		DefaultName:  cfg.DefaultConference,
		DemoSession:  cfg.DemoSession,
		LeaveTimeout: cfg.DisposeTimeout,
	})
	o := orch.New(rt, svc, store, loop.Post, orch.Options{
		SessionID:      cfg.SessionID,
		LinkPrimary:    domain.ParticipantID(cfg.LinkPrimary),
		AutoStart:      cfg.AutoStart,
		DisposeTimeout: cfg.DisposeTimeout,
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{Sharing: o, Session: svc, Store: store})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	// the session outlives ctx until it is torn down
	sessionCtx, stopSession := context.WithCancel(context.Background())
	defer stopSession()

	g, gctx := errgroup.WithContext(sessionCtx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("session", cfg.SessionID).Msg("sharer started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-gctx.Done():
		}
		log.Info().Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		teardown(shutdownCtx, o)
		err := srv.Shutdown(shutdownCtx)
		stopSession()
		return err
	})

	o.Open(gctx)
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// teardown stops sharing and waits until the conference is left and the
// capture released.
func teardown(ctx context.Context, o *orch.Orchestrator) {
	o.StopSharing()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		st := o.Status()
		if st.Track == machine.TrackIdle && st.Conference == machine.NotJoined {
			break
		}
		select {
		case <-ctx.Done():
			log.Warn().Str("module", "main").Interface("status", st).Msg("teardown timed out")
			return
		case <-tick.C:
		}
	}
	o.Close()
}
