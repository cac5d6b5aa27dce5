package ooredoo

import (
	"context"
	"fmt"
	"net/http"
)

// HandshakeToken is the one-time nonce/chronos pair issued by the checkpoint
// endpoint. It authorizes exactly one subsequent protected call and must be
// freshly acquired each time; it is never cached.
type HandshakeToken struct {
	Nonce   string
	Chronos string
}

// Checkpoint performs the pre-flight handshake for the OTP endpoint. The
// deviceUUID is optional: the gift claim path performs the handshake without
// it, matching the mobile app.
func (c *Client) Checkpoint(ctx context.Context, msisdn, deviceUUID string) (HandshakeToken, error) {
	req, err := c.newRequest(ctx, http.MethodPost, pathCheckpoint, nil)
	if err != nil {
		return HandshakeToken{}, err
	}

	req.Header.Set("X-msisdn", msisdn)
	req.Header.Set("X-platform-origin", platformOrigin)
	req.Header.Set("X-path", pathOTP)
	req.Header.Set("X-method", http.MethodPost)
	if deviceUUID != "" {
		req.Header.Set("X-Device-ID", deviceUUID)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", formContentType)

	resp, body, err := c.do(req, "checkpoint")
	if err != nil {
		return HandshakeToken{}, err
	}

	if resp.StatusCode != http.StatusAccepted {
		return HandshakeToken{}, fmt.Errorf("%w: checkpoint failed: status %d: %s", ErrProtocol, resp.StatusCode, body)
	}

	token := HandshakeToken{
		Nonce:   resp.Header.Get("X-Nonce-Id"),
		Chronos: resp.Header.Get("X-Chronos-Id"),
	}
	if token.Nonce == "" || token.Chronos == "" {
		return HandshakeToken{}, fmt.Errorf("%w: checkpoint accepted but nonce/chronos headers missing", ErrProtocol)
	}
	return token, nil
}
