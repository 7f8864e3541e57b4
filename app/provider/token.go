package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultTokenLifetime = 3600 * time.Second

type TokenSourceConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	ExpiryMargin time.Duration
	HTTPTimeout  time.Duration
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// TokenSource caches OAuth client-credentials tokens per key and renews them
// ExpiryMargin before they expire. Concurrent misses for the same key share a
// single token request.
type TokenSource struct {
	cfg    TokenSourceConfig
	client *http.Client
	group  singleflight.Group

	mu     sync.RWMutex
	tokens map[string]cachedToken
	now    func() time.Time
}

func NewTokenSource(cfg TokenSourceConfig) *TokenSource {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if cfg.ExpiryMargin < 0 {
		cfg.ExpiryMargin = 0
	}
	return &TokenSource{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		tokens: make(map[string]cachedToken),
		now:    time.Now,
	}
}

func (s *TokenSource) Token(ctx context.Context, key string) (string, error) {
	if token, ok := s.cached(key); ok {
		return token, nil
	}

	// The shared request outlives any single caller; it is bounded by the
	// client timeout.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		if token, ok := s.cached(key); ok {
			return token, nil
		}
		token, lifetime, err := s.fetch(fetchCtx)
		if err != nil {
			return "", err
		}
		s.store(key, token, lifetime)
		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token for key, e.g. after a 401.
func (s *TokenSource) Invalidate(key string) {
	s.mu.Lock()
	delete(s.tokens, key)
	s.mu.Unlock()
}

func (s *TokenSource) cached(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[key]
	if !ok || !s.now().Before(token.expiresAt) {
		return "", false
	}
	return token.value, true
}

func (s *TokenSource) store(key, token string, lifetime time.Duration) {
	ttl := lifetime - s.cfg.ExpiryMargin
	if ttl <= 0 {
		ttl = lifetime / 2
	}
	s.mu.Lock()
	s.tokens[key] = cachedToken{value: token, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
}

func (s *TokenSource) fetch(ctx context.Context) (string, time.Duration, error) {
	if strings.TrimSpace(s.cfg.ClientID) == "" || strings.TrimSpace(s.cfg.ClientSecret) == "" {
		return "", 0, fmt.Errorf("oauth client credentials are not configured")
	}

	body := strings.NewReader("scope=oob&grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, body)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(s.cfg.ClientID, s.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("oauth token request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("oauth token request failed: status=%d body=%s", resp.StatusCode, truncateBody(raw))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", 0, fmt.Errorf("decode oauth token response: %w", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", 0, fmt.Errorf("oauth token response has no access_token")
	}

	lifetime := defaultTokenLifetime
	if payload.ExpiresIn > 0 {
		lifetime = time.Duration(payload.ExpiresIn) * time.Second
	}
	return payload.AccessToken, lifetime, nil
}

func truncateBody(raw []byte) string {
	const max = 512
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max])
}
