package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event 推送到 webhook 的单字段事件
type Event struct {
	Event     string          `json:"event"`
	Source    string          `json:"source,omitempty"`
	Device    string          `json:"device"`
	Key       string          `json:"key"`
	Topic     string          `json:"topic"`
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"`
}

// Pusher 带签名头与 5xx 重试的 JSON 推送器
type Pusher struct {
	Client  *http.Client
	APIKey  string
	Secret  string
	Retries int
	Backoff []time.Duration
	now     func() time.Time
}

// NewPusher 创建推送器
func NewPusher(client *http.Client, apiKey, secret string) *Pusher {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Pusher{
		Client:  client,
		APIKey:  apiKey,
		Secret:  secret,
		Retries: 3,
		Backoff: []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, time.Second},
		now:     time.Now,
	}
}

// SendJSON 发送 JSON，返回最后一次响应码与响应体
func (p *Pusher) SendJSON(ctx context.Context, endpoint string, payload any) (int, []byte, error) {
	if p == nil || p.Client == nil {
		return 0, nil, errors.New("nil pusher")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return 0, nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	var (
		code     int
		respBody []byte
		lastErr  error
	)
	for attempt := 0; attempt <= p.Retries; attempt++ {
		// 每次重试重新签名（新的 nonce/时间戳）
		req, err := p.newRequest(ctx, endpoint, u.Path, body)
		if err != nil {
			return 0, nil, err
		}
		resp, err := p.Client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			code = resp.StatusCode
			respBody, _ = io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			lastErr = nil
			// 仅对5xx重试
			if code < 500 {
				return code, respBody, nil
			}
		}
		if attempt == p.Retries {
			break
		}
		backoff := p.Backoff[min(attempt, len(p.Backoff)-1)]
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if lastErr != nil {
		return 0, nil, lastErr
	}
	return code, respBody, fmt.Errorf("http %d", code)
}

func (p *Pusher) newRequest(ctx context.Context, endpoint, path string, body []byte) (*http.Request, error) {
	ts := p.now().Unix()
	nonce := uuid.NewString()
	sig := SignHMAC(p.Secret, Canonical(http.MethodPost, path, ts, nonce, body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", p.APIKey)
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Nonce", nonce)
	return req, nil
}

// WebhookConfig webhook sink 配置
type WebhookConfig struct {
	URL              string
	APIKey           string
	Secret           string
	Source           string
	Timeout          time.Duration
	Retries          int
	RatePerSec       float64
	Burst            int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// WebhookSink 以签名 HTTP POST 推送每个字段，受限流与熔断保护
type WebhookSink struct {
	cfg     WebhookConfig
	pusher  *Pusher
	breaker *CircuitBreaker
	limiter *RateLimiter
	logger  *zap.Logger
}

// NewWebhookSink 创建 webhook sink
func NewWebhookSink(cfg WebhookConfig, logger *zap.Logger) (*WebhookSink, error) {
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("webhook url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	p := NewPusher(&http.Client{Timeout: timeout}, cfg.APIKey, cfg.Secret)
	if cfg.Retries > 0 {
		p.Retries = cfg.Retries
	}

	w := &WebhookSink{
		cfg:     cfg,
		pusher:  p,
		breaker: NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		limiter: NewRateLimiter(cfg.RatePerSec, cfg.Burst),
		logger:  logger.With(zap.String("component", "sink_webhook")),
	}
	w.breaker.SetStateChangeCallback(func(from, to BreakerState) {
		w.logger.Warn("webhook circuit breaker state changed",
			zap.String("from", from.String()), zap.String("to", to.String()))
	})
	return w, nil
}

func (w *WebhookSink) Name() string { return "webhook" }

func (w *WebhookSink) Publish(ctx context.Context, topic string, payload []byte) error {
	device, key, _ := SplitTopic(topic)
	ev := Event{
		Event:     "telemetry",
		Source:    w.cfg.Source,
		Device:    device,
		Key:       key,
		Topic:     topic,
		Value:     json.RawMessage(payload),
		Timestamp: time.Now().Unix(),
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	return w.breaker.Call(func() error {
		code, _, err := w.pusher.SendJSON(ctx, w.cfg.URL, ev)
		if err != nil {
			return err
		}
		if code < 200 || code >= 300 {
			return fmt.Errorf("webhook http %d", code)
		}
		return nil
	})
}

// Breaker 熔断器（健康检查用）
func (w *WebhookSink) Breaker() *CircuitBreaker { return w.breaker }

func (w *WebhookSink) Close() error {
	w.pusher.Client.CloseIdleConnections()
	return nil
}
