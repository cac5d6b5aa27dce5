package ooredoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"ooredoo-bot/internal/metrics"
)

// flexString decodes JSON fields the backend serves inconsistently as either
// a string or a number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Bundle is one active allocation on the account.
type Bundle struct {
	AllocationName   string `json:"allocationName"`
	RemainingBalance string `json:"-"`
	Unit             string `json:"unit"`
	ExpireDate       string `json:"expireDate"`
}

func (b *Bundle) UnmarshalJSON(data []byte) error {
	var raw struct {
		AllocationName   string     `json:"allocationName"`
		RemainingBalance flexString `json:"remainingBalance"`
		Unit             string     `json:"unit"`
		ExpireDate       string     `json:"expireDate"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.AllocationName = raw.AllocationName
	b.RemainingBalance = string(raw.RemainingBalance)
	b.Unit = raw.Unit
	b.ExpireDate = raw.ExpireDate
	return nil
}

// Packages is the flattened view of the active-packages response.
type Packages struct {
	AccountBalance string
	Bundles        []Bundle
}

// GiftStatus is the gamification status for the account.
type GiftStatus struct {
	Played         bool   `json:"played"`
	LastPlayedTime string `json:"lastPlayedTime"`
}

// GiftPlayResult is the outcome of a successful gift claim.
type GiftPlayResult struct {
	GiftName     string
	ValidityHour string
	PlayedTime   string
}

// ValidateUser fetches the subscription plan for the session's number.
func (c *Client) ValidateUser(ctx context.Context, s Session) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathValidateUser+"?msisdn="+url.QueryEscape(s.MSISDN), nil)
	if err != nil {
		return "", err
	}
	copyHeaders(req, c.verifiedHeaders(s))

	resp, body, err := c.do(req, "validate_user")
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: validate user failed: status %d: %s", ErrProtocol, resp.StatusCode, body)
	}

	var payload struct {
		PlanType string `json:"planType"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: validate user returned malformed body: %v", ErrProtocol, err)
	}
	if payload.PlanType == "" {
		return "Unknown", nil
	}
	return payload.PlanType, nil
}

// ActivePackages fetches the account balance and all active bundles,
// flattening the monthly data/smart purchase groups into one list.
func (c *Client) ActivePackages(ctx context.Context, s Session) (*Packages, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathActivePackages+"?msisdn="+url.QueryEscape(s.MSISDN), nil)
	if err != nil {
		return nil, err
	}
	copyHeaders(req, c.verifiedHeaders(s))

	resp, body, err := c.do(req, "active_packages")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: active packages failed: status %d: %s", ErrProtocol, resp.StatusCode, body)
	}

	var payload struct {
		AccountBalance flexString `json:"accountBalance"`
		ActiveBundles  []Bundle   `json:"activeBundles"`
		Monthly        struct {
			DataBundles  []Bundle `json:"dataBundles"`
			SmartBundles []Bundle `json:"smartBundles"`
		} `json:"monthlyDataSmartBundlePurchases"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: active packages returned malformed body: %v", ErrProtocol, err)
	}

	pkgs := &Packages{AccountBalance: string(payload.AccountBalance)}
	if pkgs.AccountBalance == "" {
		pkgs.AccountBalance = "0"
	}
	pkgs.Bundles = append(pkgs.Bundles, payload.ActiveBundles...)
	pkgs.Bundles = append(pkgs.Bundles, payload.Monthly.DataBundles...)
	pkgs.Bundles = append(pkgs.Bundles, payload.Monthly.SmartBundles...)
	return pkgs, nil
}

// FetchGiftStatus asks the backend whether the daily gift was already played.
func (c *Client) FetchGiftStatus(ctx context.Context, s Session) (*GiftStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathGiftStatus, nil)
	if err != nil {
		return nil, err
	}
	copyHeaders(req, c.verifiedHeaders(s))

	resp, body, err := c.do(req, "gift_status")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gift status failed: status %d: %s", ErrProtocol, resp.StatusCode, body)
	}

	var status GiftStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("%w: gift status returned malformed body: %v", ErrProtocol, err)
	}
	return &status, nil
}

// PlayGift claims the daily gift. It requires a fresh handshake token on top
// of the usual fingerprint headers.
func (c *Client) PlayGift(ctx context.Context, s Session, hs HandshakeToken) (*GiftPlayResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, pathGiftPlay, nil)
	if err != nil {
		return nil, err
	}
	copyHeaders(req, c.verifiedHeaders(s))
	req.Header.Set("X-Nonce-Id", hs.Nonce)
	req.Header.Set("X-Chronos-Id", hs.Chronos)
	req.Header.Set("X-platform-origin", platformOrigin)

	resp, body, err := c.do(req, "gift_play")
	if err != nil {
		metrics.GiftClaims.WithLabelValues("error").Inc()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		metrics.GiftClaims.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: gift play failed: status %d: %s", ErrProtocol, resp.StatusCode, body)
	}

	var payload struct {
		GiftName     string     `json:"giftName"`
		ValidityHour flexString `json:"validityHour"`
		PlayedTime   string     `json:"playedTime"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.GiftClaims.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: gift play returned malformed body: %v", ErrProtocol, err)
	}

	metrics.GiftClaims.WithLabelValues("ok").Inc()
	return &GiftPlayResult{
		GiftName:     payload.GiftName,
		ValidityHour: string(payload.ValidityHour),
		PlayedTime:   payload.PlayedTime,
	}, nil
}

func copyHeaders(req *http.Request, h http.Header) {
	for k, vs := range h {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
}
