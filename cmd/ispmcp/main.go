// Package main запускает MCP-шлюз к API провайдера через stdio или HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/isp-mcp-gateway/internal/cache"
	"github.com/mmeshcher/isp-mcp-gateway/internal/clock"
	"github.com/mmeshcher/isp-mcp-gateway/internal/config"
	"github.com/mmeshcher/isp-mcp-gateway/internal/handler"
	"github.com/mmeshcher/isp-mcp-gateway/internal/logger"
	"github.com/mmeshcher/isp-mcp-gateway/internal/metrics"
	"github.com/mmeshcher/isp-mcp-gateway/internal/middleware"
	"github.com/mmeshcher/isp-mcp-gateway/internal/money"
	"github.com/mmeshcher/isp-mcp-gateway/internal/normalize"
	"github.com/mmeshcher/isp-mcp-gateway/internal/service"
	"github.com/mmeshcher/isp-mcp-gateway/internal/upstream"
)

const serviceName = "isp-mcp-gateway"

var version = "dev"

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Service: serviceName,
		Version: version,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sugar := log.Sugar()

	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	formatter, err := money.NewFormatter(cfg.CurrencyLocale, cfg.CurrencyCode, cfg.CurrencySymbol)
	if err != nil {
		sugar.Fatalw("currency configuration error", "error", err.Error())
	}
	sugar.Infow("amounts formatting configured",
		"locale", cfg.CurrencyLocale,
		"currency", formatter.Currency(),
		"symbol", formatter.Symbol(),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	clk := clock.Real{}
	responses := cache.New[json.RawMessage](cache.WithClock(clk))
	m.RegisterCache("responses", responses.Stats)

	api := upstream.NewClient(upstream.Config{
		BaseURL:       cfg.APIURL,
		APIKey:        cfg.APIKey,
		Timeout:       cfg.APITimeout,
		RetryAttempts: cfg.RetryAttempts,
		BackoffBase:   cfg.BackoffBase,
	},
		upstream.WithCache(responses),
		upstream.WithClock(clk),
		upstream.WithLogger(log),
		upstream.WithMetrics(m),
	)

	svc := service.NewService(api, normalize.New(formatter, clk.Now), service.Options{
		ClientsTTL:          cfg.ClientsTTL,
		TicketsTTL:          cfg.TicketsTTL,
		BalancesTTL:         cfg.BalancesTTL,
		FetchAttempts:       cfg.FetchClientAttempts,
		FetchBackoff:        cfg.FetchClientBackoff,
		TicketWriteDenylist: cfg.TicketWriteDenylist,
		TicketReasonCode:    cfg.TicketReasonCode,
		Debug:               cfg.DebugPayloads,
	},
		service.WithClock(clk),
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithCache(responses),
	)

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthToken)
	h := handler.NewHandler(svc, log, authMiddleware, serviceName, version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая очистка просроченных записей кеша
	svc.StartCacheJanitor(ctx, cfg.CacheCleanupInterval)

	switch cfg.Transport {
	case config.TransportHTTP:
		runHTTP(ctx, g, sugar, h, registry, cfg.RunAddress)
	default:
		runStdio(ctx, g, sugar, log, h, stop)
	}

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func runStdio(ctx context.Context, g *errgroup.Group, sugar *zap.SugaredLogger, log *zap.Logger, h *handler.Handler, stop context.CancelFunc) {
	stdio := server.NewStdioServer(h.MCPServer())
	stdio.SetErrorLogger(zap.NewStdLog(log))

	g.Go(func() error {
		// Закрытие stdin клиентом завершает процесс.
		defer stop()

		sugar.Infow("starting MCP server on stdio")
		err := stdio.Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
			return fmt.Errorf("stdio server error: %w", err)
		}
		sugar.Info("stdio server stopped")
		return nil
	})
}

func runHTTP(ctx context.Context, g *errgroup.Group, sugar *zap.SugaredLogger, h *handler.Handler, registry *prometheus.Registry, addr string) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.SetupRouter(registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		sugar.Infow("starting MCP server on HTTP", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})
}
