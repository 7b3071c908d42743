// Package service реализует доменные операции шлюза поверх клиента API
// провайдера, нормализатора и протокола проверки записи.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/isp-mcp-gateway/internal/apperr"
	"github.com/mmeshcher/isp-mcp-gateway/internal/cache"
	"github.com/mmeshcher/isp-mcp-gateway/internal/clock"
	"github.com/mmeshcher/isp-mcp-gateway/internal/logger"
	"github.com/mmeshcher/isp-mcp-gateway/internal/metrics"
	"github.com/mmeshcher/isp-mcp-gateway/internal/model"
	"github.com/mmeshcher/isp-mcp-gateway/internal/normalize"
	"github.com/mmeshcher/isp-mcp-gateway/internal/upstream"
	"github.com/mmeshcher/isp-mcp-gateway/internal/verify"
)

// Upstream описывает контракт клиента API провайдера, используемый сервисом.
type Upstream interface {
	Get(ctx context.Context, path string, params url.Values, ttl time.Duration) (json.RawMessage, error)
	Post(ctx context.Context, path string, body any) (json.RawMessage, error)
	Put(ctx context.Context, path string, body any) (json.RawMessage, error)
	Patch(ctx context.Context, path string, body any) (json.RawMessage, error)
}

// ResponseCache описывает обслуживаемый кеш ответов.
type ResponseCache interface {
	Stats() cache.Stats
	Cleanup() int
	DeletePrefix(prefix string) int
}

// Options задаёт поведение доменных операций.
type Options struct {
	ClientsTTL          time.Duration
	TicketsTTL          time.Duration
	BalancesTTL         time.Duration
	FetchAttempts       int
	FetchBackoff        time.Duration
	TicketWriteDenylist []string
	TicketReasonCode    int
	Debug               bool
}

// DefaultOptions возвращает параметры по умолчанию.
func DefaultOptions() Options {
	return Options{
		ClientsTTL:          5 * time.Minute,
		TicketsTTL:          time.Minute,
		BalancesTTL:         2 * time.Minute,
		FetchAttempts:       3,
		FetchBackoff:        500 * time.Millisecond,
		TicketWriteDenylist: []string{"tickets_mensual", "tickets_anual", "vencimiento", "archivo_ticket", "respuestas"},
		TicketReasonCode:    1,
	}
}

// Service содержит доменные операции шлюза.
type Service struct {
	api     Upstream
	norm    *normalize.Normalizer
	opts    Options
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
	cache   ResponseCache
}

// Option настраивает сервис.
type Option func(*Service)

// WithClock задаёт источник времени и ожидания.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithLogger задаёт логгер.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCache подключает кеш ответов для статистики, очистки и инвалидации после записи.
func WithCache(c ResponseCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// NewService создаёт сервис.
func NewService(api Upstream, norm *normalize.Normalizer, opts Options, options ...Option) *Service {
	s := &Service{
		api:    api,
		norm:   norm,
		opts:   opts,
		clock:  clock.Real{},
		logger: zap.NewNop(),
	}
	for _, o := range options {
		o(s)
	}
	if s.opts.FetchAttempts <= 0 {
		s.opts.FetchAttempts = 1
	}
	return s
}

const (
	pathClients = "clientes/"
	pathTickets = "tickets/"
)

func clientPath(id int64) string {
	return fmt.Sprintf("clientes/%d/", id)
}

func balancePath(id int64) string {
	return fmt.Sprintf("clientes/%d/saldo/", id)
}

func ticketPath(id int64) string {
	return fmt.Sprintf("tickets/%d/", id)
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, s.logger)
}

func (s *Service) ok(data any, debug *model.Debug) model.Result {
	return model.Result{
		Success:   true,
		Data:      data,
		Timestamp: s.clock.Now(),
		Debug:     debug,
	}
}

func (s *Service) empty(message string, debug *model.Debug) model.Result {
	r := s.ok(nil, debug)
	r.Message = message
	return r
}

func (s *Service) fail(ctx context.Context, op string, err error, debug *model.Debug) model.Result {
	kind := apperr.KindOf(err)
	log := s.log(ctx).With(zap.String("operation", op), zap.String("kind", string(kind)))
	if kind == apperr.KindValidation {
		log.Info("operation rejected", zap.Error(err))
	} else {
		log.Error("operation failed", zap.Error(err))
	}
	return model.Result{
		Success:   false,
		Error:     err.Error(),
		Kind:      string(kind),
		Hint:      apperr.Hint(err),
		Timestamp: s.clock.Now(),
		Debug:     debug,
	}
}

// debugPayload возвращает отладочные данные, если они включены в настройках.
func (s *Service) debugPayload(request, response any) *model.Debug {
	if !s.opts.Debug {
		return nil
	}
	return &model.Debug{Request: request, Response: response}
}

func (s *Service) invalidate(path string) {
	if s.cache == nil {
		return
	}
	s.cache.DeletePrefix(upstream.CacheKey(http.MethodGet, path, nil))
}

func isNotFound(err error) bool {
	return apperr.StatusOf(err) == http.StatusNotFound || apperr.KindOf(err) == apperr.KindNotFound
}

func (s *Service) observeVerification(ctx context.Context, op string, out *verify.Outcome) {
	s.metrics.ObserveVerification(op, string(out.State), out.Report.Mismatches)
	log := s.log(ctx).With(zap.String("operation", op))
	switch {
	case out.State == verify.StateVerificationFailed:
		log.Warn("write acknowledged but verification failed", zap.String("error", out.Report.Error))
	case len(out.Report.Mismatches) > 0:
		log.Warn("upstream did not persist some fields", zap.Strings("fields", out.Report.Mismatches))
	}
}

// CacheStats возвращает статистику кеша ответов.
func (s *Service) CacheStats(ctx context.Context) model.Result {
	if s.cache == nil {
		return s.fail(ctx, "cache_stats", errors.New("response cache is not configured"), nil)
	}
	return s.ok(s.cache.Stats(), nil)
}

// StartCacheJanitor запускает периодическую очистку просроченных записей кеша.
func (s *Service) StartCacheJanitor(ctx context.Context, interval time.Duration) {
	if s.cache == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.cache.Cleanup(); removed > 0 {
					s.logger.Debug("cache cleanup", zap.Int("removed", removed))
				}
			}
		}
	}()
}
