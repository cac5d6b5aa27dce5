package ooredoo

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"ooredoo-bot/internal/identity"
	"ooredoo-bot/internal/metrics"
)

// API paths, relative to the configured base URL. These mirror the mobile
// app's backend-for-frontend exactly.
const (
	pathOTP             = "/api/auth/realms/myooredoo/protocol/openid-connect/token"
	pathCheckpoint      = "/api/ooredoo-bff/checkpoint/token"
	pathValidateUser    = "/api/ooredoo-bff/users/validateUser"
	pathActivePackages  = "/api/ooredoo-bff/bundle/getActivePackages"
	pathGiftStatus      = "/api/ooredoo-bff/gamification/status"
	pathGiftPlay        = "/api/ooredoo-bff/gamification/play"
	pathSnapEligibility = "/api/ooredoo-bff/snap-chat/eligibility"
)

const (
	platformOrigin  = "mobile-android"
	userAgent       = "Dart/3.4 (dart:io)"
	formContentType = "application/x-www-form-urlencoded; charset=utf-8"
	oauthClientID   = "myooredoo-app"
)

// Client talks to the carrier backend. It owns no per-user state; callers
// pass a Session for authenticated endpoints.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	fingerprints *identity.FingerprintGenerator
	logger       *log.Logger
}

// Session carries the per-user material every authenticated request needs.
// MSISDN must already be in international form.
type Session struct {
	AccessToken string
	MSISDN      string
	InstantID   string
}

// NewClient creates a carrier API client.
func NewClient(baseURL string, timeout time.Duration, fingerprints *identity.FingerprintGenerator, logger *log.Logger) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		fingerprints: fingerprints,
		logger:       logger,
	}
}

// do executes a request, reads the full body and records metrics. Transport
// failures come back wrapped in ErrTransport; status handling is up to the
// caller.
func (c *Client) do(req *http.Request, endpoint string) (*http.Response, []byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RemoteRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RemoteRequests.WithLabelValues(endpoint, "transport_error").Inc()
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrTransport, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RemoteRequests.WithLabelValues(endpoint, "transport_error").Inc()
		return nil, nil, fmt.Errorf("%w: %s: reading response: %v", ErrTransport, endpoint, err)
	}

	metrics.RemoteRequests.WithLabelValues(endpoint, fmt.Sprintf("http_%d", resp.StatusCode)).Inc()
	return resp, body, nil
}

// verifiedHeaders builds the authorization header set for authenticated
// endpoints. The fingerprint is recomputed on every call; reusing one is
// invalid because the timestamp is part of both key and message.
func (c *Client) verifiedHeaders(s Session) http.Header {
	fp, ts := c.fingerprints.Compute(s.InstantID, s.MSISDN)

	h := http.Header{}
	h.Set("X-Device-Fingerprint", fp)
	h.Set("X-Platform-Origin", platformOrigin)
	h.Set("Authorization", "Bearer "+s.AccessToken)
	h.Set("X-Timestamp", ts)
	h.Set("X-Instance-Id", s.InstantID)
	h.Set("X-Msisdn", s.MSISDN)
	h.Set("User-Agent", userAgent)
	return h
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", path, err)
	}
	return req, nil
}
