// Package push periodically sends the EVSE status snapshot of a roaming
// network to a partner endpoint.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openchargingcloud/wwcp/auth"
	"github.com/openchargingcloud/wwcp/core/charging"
	"github.com/openchargingcloud/wwcp/core/logger"
	"github.com/openchargingcloud/wwcp/core/monitoring"
)

const defaultInterval = time.Minute

// Config configures the status pusher.
type Config struct {
	URL      string        `json:"url"`
	Interval time.Duration `json:"interval"`
	Timeout  time.Duration `json:"timeout"`
	Auth     auth.Conf     `json:"auth"`
}

func (c Config) Enabled() bool { return c.URL != "" }

func (c *Config) SetDefaults() {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Payload is the body of one push.
type Payload struct {
	NetworkID string                      `json:"networkId"`
	Timestamp time.Time                   `json:"timestamp"`
	EVSEs     []charging.EVSEStatusRecord `json:"evseStatus"`
}

// Source returns the records to push.
type Source interface {
	ID() string
	EVSEStatus(charging.EVSEStatusFilter) []charging.EVSEStatusRecord
}

// Pusher posts Payloads to the configured URL.
type Pusher struct {
	cfg    Config
	src    Source
	client *http.Client
	creds  *auth.ClientCred
	log    logger.Logger
	now    func() time.Time
}

func New(cfg Config, src Source, log logger.Logger) *Pusher {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	p := &Pusher{
		cfg:    cfg,
		src:    src,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
		now:    time.Now,
	}
	if cfg.Auth.Enabled() {
		p.creds = auth.NewClientCred(cfg.Auth)
	}
	return p
}

// Push sends one snapshot. A 401 answer triggers a token refresh and a
// single retry.
func (p *Pusher) Push(ctx context.Context) error {
	payload := Payload{
		NetworkID: p.src.ID(),
		Timestamp: p.now().UTC(),
		EVSEs:     p.src.EVSEStatus(charging.EVSEStatusFilter{}),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	status, err := p.post(ctx, body)
	if err == nil && status == http.StatusUnauthorized && p.creds != nil {
		if _, err = p.creds.ForceRefresh(ctx); err != nil {
			return err
		}
		status, err = p.post(ctx, body)
	}
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("unexpected status code: %d", status)
	}
	return nil
}

func (p *Pusher) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.creds != nil {
		if err := p.creds.SetAuthHeader(req); err != nil {
			return 0, fmt.Errorf("failed to set auth header: %w", err)
		}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Run pushes on every interval until ctx is done.
func (p *Pusher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Push(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.log.Errorw("status push failed", map[string]any{"url": p.cfg.URL, "err": err})
				monitoring.CaptureException(err, map[string]string{"module": "push"})
			}
		}
	}
}
