package ooredoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"ooredoo-bot/internal/metrics"
)

// Credentials are the opaque session tokens issued on a successful OTP
// verification.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// defaultTokenTTL is assumed when the token response omits expires_in.
const defaultTokenTTL = 3600

func (c *Client) otpRequest(ctx context.Context, msisdn, otp string, hs HandshakeToken, deviceUUID string) (*http.Response, []byte, error) {
	form := url.Values{}
	form.Set("client_id", oauthClientID)
	form.Set("grant_type", "password")
	form.Set("username", msisdn)
	if otp != "" {
		form.Set("otp", otp)
	}

	req, err := c.newRequest(ctx, http.MethodPost, pathOTP, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("X-Nonce-Id", hs.Nonce)
	req.Header.Set("X-Chronos-Id", hs.Chronos)
	req.Header.Set("X-platform-origin", platformOrigin)
	req.Header.Set("X-Device-ID", deviceUUID)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", formContentType)

	return c.do(req, "otp")
}

// RequestOTP asks the backend to dispatch an OTP to the given number. The
// backend signals a dispatched OTP with 403, not 200; any other status is a
// failure. This inverted contract is deliberate on the backend's side.
func (c *Client) RequestOTP(ctx context.Context, msisdn string, hs HandshakeToken, deviceUUID string) error {
	resp, body, err := c.otpRequest(ctx, msisdn, "", hs, deviceUUID)
	if err != nil {
		metrics.OTPSends.WithLabelValues("error").Inc()
		return err
	}

	if resp.StatusCode != http.StatusForbidden {
		metrics.OTPSends.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: OTP send failed: status %d: %s", ErrProtocol, resp.StatusCode, body)
	}

	metrics.OTPSends.WithLabelValues("ok").Inc()
	return nil
}

// VerifyOTP exchanges the OTP code for session credentials.
func (c *Client) VerifyOTP(ctx context.Context, msisdn, otp string, hs HandshakeToken, deviceUUID string) (Credentials, error) {
	resp, body, err := c.otpRequest(ctx, msisdn, otp, hs, deviceUUID)
	if err != nil {
		metrics.OTPVerifies.WithLabelValues("error").Inc()
		return Credentials{}, err
	}

	if resp.StatusCode != http.StatusOK {
		metrics.OTPVerifies.WithLabelValues("rejected").Inc()
		return Credentials{}, fmt.Errorf("%w: OTP verify failed: status %d: %s", ErrProtocol, resp.StatusCode, body)
	}

	var creds Credentials
	if err := json.Unmarshal(body, &creds); err != nil {
		metrics.OTPVerifies.WithLabelValues("error").Inc()
		return Credentials{}, fmt.Errorf("%w: OTP verify returned malformed body: %v", ErrProtocol, err)
	}
	if creds.AccessToken == "" || creds.RefreshToken == "" {
		metrics.OTPVerifies.WithLabelValues("error").Inc()
		return Credentials{}, fmt.Errorf("%w: OTP verify response missing tokens", ErrProtocol)
	}
	if creds.ExpiresIn == 0 {
		creds.ExpiresIn = defaultTokenTTL
	}

	metrics.OTPVerifies.WithLabelValues("ok").Inc()
	return creds, nil
}
