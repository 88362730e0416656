package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

type HTTPConfig struct {
	BaseURL   string
	Path      string
	Timeout   time.Duration
	UserAgent string
}

// HTTPSource polls the marketplace "last listings" endpoint.
type HTTPSource struct {
	client *resty.Client
	path   string
}

func NewHTTPSource(cfg HTTPConfig) *HTTPSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &HTTPSource{client: client, path: cfg.Path}
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	op := http.MethodGet + " " + s.path
	resp, err := s.client.R().SetContext(ctx).Get(s.path)
	if err != nil {
		return nil, &domain.FetchError{Op: op, Err: err}
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return nil, &domain.FetchError{Op: op, Status: code, Err: fmt.Errorf("unexpected status %s", resp.Status())}
	}
	return decodeSnapshot(op, resp.Body())
}

func decodeSnapshot(op string, body []byte) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, &domain.FetchError{Op: op, Err: fmt.Errorf("decode snapshot: %w", err)}
	}
	return &snap, nil
}

var _ ports.Source = (*HTTPSource)(nil)
