// Package upstream предоставляет HTTP-клиент API провайдера: авторизация,
// кеширование чтений, повторы с экспоненциальной задержкой и классификация ошибок.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mmeshcher/isp-mcp-gateway/internal/apperr"
	"github.com/mmeshcher/isp-mcp-gateway/internal/cache"
	"github.com/mmeshcher/isp-mcp-gateway/internal/clock"
	"github.com/mmeshcher/isp-mcp-gateway/internal/logger"
	"github.com/mmeshcher/isp-mcp-gateway/internal/metrics"
)

const (
	maxBodySize       = 10 << 20
	maxMessageLength  = 500
	defaultTimeout    = 30 * time.Second
	defaultBackoff    = time.Second
	tracerName        = "github.com/mmeshcher/isp-mcp-gateway/internal/upstream"
	authorizationKind = "Api-Key"
)

// Config содержит параметры подключения к API провайдера.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RetryAttempts int
	BackoffBase   time.Duration
}

// Client инкапсулирует HTTP-взаимодействие с API провайдера.
type Client struct {
	baseURL       string
	apiKey        string
	httpClient    *http.Client
	retryAttempts int
	backoffBase   time.Duration
	cache         *cache.Cache[json.RawMessage]
	clock         clock.Clock
	logger        *zap.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
}

// Option настраивает клиент.
type Option func(*Client)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithCache задаёт кеш ответов на GET-запросы.
func WithCache(rc *cache.Cache[json.RawMessage]) Option {
	return func(c *Client) {
		c.cache = rc
	}
}

// WithClock задаёт источник времени и ожидания между повторами.
func WithClock(cl clock.Clock) Option {
	return func(c *Client) {
		c.clock = cl
	}
}

// WithLogger задаёт логгер.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics задаёт prometheus-метрики.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient создаёт клиент API провайдера.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		baseURL:       normalizeBaseURL(cfg.BaseURL),
		apiKey:        cfg.APIKey,
		retryAttempts: cfg.RetryAttempts,
		backoffBase:   cfg.BackoffBase,
		clock:         clock.Real{},
		logger:        zap.NewNop(),
		tracer:        otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = cleanhttp.DefaultPooledClient()
		c.httpClient.Timeout = defaultTimeout
		if cfg.Timeout > 0 {
			c.httpClient.Timeout = cfg.Timeout
		}
	}
	if c.cache == nil {
		c.cache = cache.New[json.RawMessage](cache.WithClock(c.clock))
	}
	if c.retryAttempts < 0 {
		c.retryAttempts = 0
	}
	if c.backoffBase <= 0 {
		c.backoffBase = defaultBackoff
	}

	return c
}

func normalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return strings.TrimRight(base, "/")
}

// Cache возвращает кеш ответов клиента.
func (c *Client) Cache() *cache.Cache[json.RawMessage] {
	return c.cache
}

// CacheKey строит ключ кеша из метода, пути и отсортированных параметров.
func CacheKey(method, path string, params url.Values) string {
	key := method + " " + strings.TrimLeft(path, "/")
	if enc := params.Encode(); enc != "" {
		key += "?" + enc
	}
	return key
}

// Get выполняет GET-запрос. При ttl > 0 ответ берётся из кеша, а при промахе
// сохраняется в кеш после успешного запроса.
func (c *Client) Get(ctx context.Context, path string, params url.Values, ttl time.Duration) (json.RawMessage, error) {
	if ttl <= 0 {
		return c.do(ctx, http.MethodGet, path, params, nil)
	}

	key := CacheKey(http.MethodGet, path, params)
	if body, ok := c.cache.Get(key); ok {
		logger.WithContext(ctx, c.logger).Debug("upstream cache hit", zap.String("key", key))
		return body, nil
	}

	body, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, body, ttl)
	return body, nil
}

// Post выполняет POST-запрос без кеширования.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.write(ctx, http.MethodPost, path, body)
}

// Put выполняет PUT-запрос без кеширования.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.write(ctx, http.MethodPut, path, body)
}

// Patch выполняет PATCH-запрос без кеширования.
func (c *Client) Patch(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.write(ctx, http.MethodPatch, path, body)
}

// Delete выполняет DELETE-запрос без кеширования.
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) write(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
	}
	return c.do(ctx, method, path, nil, payload)
}

func (c *Client) url(path string, params url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// do отправляет запрос, повторяя его при сетевых ошибках и ответах 5xx.
// Задержка перед i-м повтором равна backoffBase * 2^i.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload []byte) (json.RawMessage, error) {
	target := c.url(path, params)

	ctx, span := c.tracer.Start(ctx, "upstream "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	log := logger.WithContext(ctx, c.logger).With(zap.String("method", method), zap.String("url", target))
	backoff := retry.WithMaxRetries(uint64(c.retryAttempts), retry.NewExponential(c.backoffBase))

	for attempt := 1; ; attempt++ {
		body, err := c.send(ctx, log, method, target, payload, attempt)
		if err == nil {
			span.SetAttributes(attribute.Int("upstream.attempts", attempt))
			return body, nil
		}

		if !apperr.IsRetryable(err) || ctx.Err() != nil {
			return nil, c.fail(span, log, err, attempt)
		}

		delay, stop := backoff.Next()
		if stop {
			return nil, c.fail(span, log, err, attempt)
		}

		c.metrics.IncRetry(method)
		log.Warn("upstream request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if werr := c.clock.Sleep(ctx, delay); werr != nil {
			return nil, c.fail(span, log, err, attempt)
		}
	}
}

func (c *Client) fail(span trace.Span, log *zap.Logger, err error, attempts int) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.Error("upstream request failed",
		zap.Int("attempts", attempts),
		zap.String("kind", string(apperr.KindOf(err))),
		zap.Int("status", apperr.StatusOf(err)),
		zap.Error(err),
	)
	return err
}

func (c *Client) send(ctx context.Context, log *zap.Logger, method, target string, payload []byte, attempt int) (json.RawMessage, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", authorizationKind+" "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		duration := time.Since(start)
		c.metrics.ObserveUpstream(method, 0, duration)
		log.Debug("upstream request got no response", zap.Int("attempt", attempt), zap.Duration("duration", duration), zap.Error(err))
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	duration := time.Since(start)
	c.metrics.ObserveUpstream(method, resp.StatusCode, duration)
	log.Debug("upstream response",
		zap.Int("attempt", attempt),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
	)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, apperr.API(resp.StatusCode, ExtractMessage(data))
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(trimmed) {
		return nil, apperr.API(resp.StatusCode, "response is not valid JSON: "+truncate(collapse(string(trimmed))))
	}
	return json.RawMessage(trimmed), nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.Timeout(err)
	}
	return apperr.Network(err)
}

// ExtractMessage достаёт текст ошибки из тела ответа: поля message, error или
// detail JSON-объекта, иначе сериализованное тело или текст страницы.
func ExtractMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return truncate(collapse(stripTags(string(trimmed))))
	}

	if m, ok := v.(map[string]any); ok {
		for _, key := range []string{"message", "error", "detail"} {
			if s := messageValue(m[key]); s != "" {
				return truncate(s)
			}
		}
	}

	compact, err := json.Marshal(v)
	if err != nil {
		return truncate(string(trimmed))
	}
	return truncate(string(compact))
}

func messageValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string) string {
	if r := []rune(s); len(r) > maxMessageLength {
		return string(r[:maxMessageLength]) + "..."
	}
	return s
}
