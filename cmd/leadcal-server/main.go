package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"leadcal/backend/internal/app"
	"leadcal/backend/internal/config"
	"leadcal/backend/internal/telemetry"
	grpcTransport "leadcal/backend/internal/transport/grpc"
	"leadcal/backend/internal/transport/httpapi"
)

const serviceName = "leadcal-server"

var version = "dev"

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("grpc_addr", cfg.GRPCAddr),
		slog.String("store", cfg.StoreDriver),
		slog.String("lock", cfg.LockBackend),
		slog.String("timezone", cfg.Location.String()),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: serviceName,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Error("otel setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("backend close failed", slog.Any("err", err))
		}
	}()

	checks := make(map[string]httpapi.Check, len(a.Checks))
	for name, check := range a.Checks {
		checks[name] = check
	}
	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.RouterConfig{
			Service:        a.Service,
			Checks:         checks,
			Log:            log,
			RequestTimeout: cfg.HTTPRequestTimeout,
			Version:        version,
			Location:       cfg.Location,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcTransport.DefaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout),
			grpcTransport.LoggingInterceptor(log),
		),
	)
	health := grpcTransport.RegisterHealth(grpcServer, a.Ready, 10*time.Second, log)
	go health.Run(ctx)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr))
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("servers started", slog.String("http_addr", cfg.HTTPAddr), slog.String("grpc_addr", cfg.GRPCAddr))

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			exitCode = 1
		}
	}

	health.Shutdown()
	shutdown(log, httpServer, grpcServer, cfg.ShutdownTimeout)

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if err := otelShutdown(flushCtx); err != nil {
		log.Warn("otel shutdown failed", slog.Any("err", err))
	}
	cancel()

	if exitCode != 0 {
		_ = a.Close()
		os.Exit(exitCode)
	}
}

func shutdown(log *slog.Logger, hs *http.Server, gs *grpc.Server, timeout time.Duration) {
	log.Info("shutting down servers", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := hs.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed", slog.Any("err", err))
	}

	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		gs.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
