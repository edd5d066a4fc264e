package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"archmarket.io/internal/audit"
	"archmarket.io/internal/authz"
	"archmarket.io/internal/config"
	"archmarket.io/internal/contact"
	"archmarket.io/internal/earnings"
	"archmarket.io/internal/httpapi"
	"archmarket.io/internal/identity"
	"archmarket.io/internal/license"
	"archmarket.io/internal/obs"
	"archmarket.io/internal/store/memory"
	"archmarket.io/internal/store/pg"
	"archmarket.io/internal/stream"
	"archmarket.io/internal/workflow"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is everything the services need from storage.
type backend interface {
	workflow.Store
	workflow.DesignDirectory
	license.Reader
	contact.UnlockStore
	audit.Recorder
	earnings.Lookup
}

func main() {
	if err := run(); err != nil {
		obs.Logger().Error("fatal", "event", "startup_failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store backend
		ready httpapi.ReadyProbe
	)
	if cfg.InMemory {
		logger.Warn("running with in-memory storage", "event", "in_memory")
		store = memory.New()
	} else {
		pgs, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer pgs.Close()
		store = pgs
		ready = httpapi.ReadyProbe{DB: pgs.DB()}
	}

	verifierOpts := []identity.VerifierOption{identity.WithIssuer(cfg.AuthIssuer)}
	paymentOpts := []identity.VerifierOption{identity.WithIssuer(cfg.PaymentIssuer)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		revoked := identity.WithRevocationList(identity.NewRedisRevocationList(rdb, ""))
		verifierOpts = append(verifierOpts, revoked)
		paymentOpts = append(paymentOpts, revoked)
	}
	verifier, err := identity.NewJWTVerifier([]byte(cfg.AuthSecret), verifierOpts...)
	if err != nil {
		return err
	}
	resolver := identity.NewResolver(verifier, identity.WithLogger(logger))

	var payments *identity.Resolver
	if cfg.PaymentSecret != "" {
		payVerifier, err := identity.NewJWTVerifier([]byte(cfg.PaymentSecret), paymentOpts...)
		if err != nil {
			return err
		}
		payments = identity.NewResolver(payVerifier, identity.WithLogger(logger))
	} else {
		logger.Warn("payment confirmations disabled", "event", "payments_disabled", "reason", "ARCHMARKET_PAYMENT_SECRET not set")
	}

	events := stream.New(64)
	guard := authz.NewGuard(authz.WithLogger(logger))
	auditLog := audit.NewLogRecorder(nil)
	wf := workflow.NewService(guard, store, store, store, audit.Multi{store, auditLog},
		workflow.WithPublisher(events), workflow.WithLogger(logger))
	contacts := contact.NewService(guard, store,
		contact.NewUnlockRecorder(store, contact.WithRecorderMirror(auditLog), contact.WithRecorderLogger(logger)))

	watcher := earnings.NewWatcher(store, earnings.WithLogger(logger))
	go watcher.Run(ctx, events)

	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return fmt.Errorf("dial amqp: %w", err)
		}
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("open amqp channel: %w", err)
		}
		defer ch.Close()
		fwd, err := stream.NewAMQPForwarder(ch, cfg.AMQPExchange, logger)
		if err != nil {
			return err
		}
		go fwd.Run(ctx, events)
	}

	api := httpapi.New(httpapi.Deps{
		Resolver: resolver,
		Payments: payments,
		Workflow: wf,
		Contact:  contacts,
		Ready:    ready,
		Version:  version,
	}, httpapi.WithLogger(logger),
		httpapi.WithMaxBodyBytes(cfg.MaxBodyBytes),
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSecond),
		httpapi.WithTrustedProxies(cfg.TrustedProxies))
	defer api.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := httpapi.NewGRPCServer(resolver, ready, logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go grpcSrv.WatchReadiness(ctx, 10*time.Second)

	errs := make(chan error, 2)
	go func() {
		logger.Info("http listening", "event", "listen", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc listening", "event", "listen", "addr", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			errs <- fmt.Errorf("grpc: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errs:
		logger.Error("server failed", "event", "server_failed", "error", err)
	}
	logger.Info("shutting down", "event", "shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	grpcSrv.GracefulStop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "event", "shutdown_failed", "error", err)
	}
	logger.Info("stopped", "event", "stopped")
	return nil
}
