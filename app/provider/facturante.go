package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const facturanteCreatePath = "/comprobantes"

type FacturanteConfig struct {
	BaseURL     string
	HTTPTimeout time.Duration
}

type FacturanteProvider struct {
	cfg    FacturanteConfig
	client *http.Client
}

func NewFacturanteProvider(cfg FacturanteConfig) *FacturanteProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &FacturanteProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *FacturanteProvider) CreateDocument(ctx context.Context, req *DocumentRequest) (*DocumentResponse, error) {
	if p.cfg.BaseURL == "" {
		return nil, fmt.Errorf("facturante base url is not configured")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+facturanteCreatePath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("facturante request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("facturante request failed: status=%d body=%s", resp.StatusCode, truncateBody(body))
	}

	var out DocumentResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode facturante response: status=%d: %w", resp.StatusCode, err)
	}
	// A 4xx carrying a well-formed response is a business rejection.
	if resp.StatusCode >= 400 {
		out.Success = false
		if len(out.Messages) == 0 {
			out.Messages = []string{fmt.Sprintf("facturante returned status %d", resp.StatusCode)}
		}
	}
	return &out, nil
}
