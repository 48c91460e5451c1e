package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/dnscache"

	"telegram-access-subscription/internal/config"
	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/adapter"
)

var (
	_ adapter.AccessProvider = (*Client)(nil)
	_ adapter.AccessChecker  = (*Client)(nil)
)

// Client invites and removes space members of the knowledge base. The
// identity is the member's e-mail address.
//
//	POST   {base}/api/spaces/{space}/members         {"email": ..., "role": "reader"}
//	DELETE {base}/api/spaces/{space}/members/{email}
//	GET    {base}/api/spaces/{space}/members/{email}  200 member, 404 not a member
type Client struct {
	base    string
	apiKey  string
	spaceID string
	http    *http.Client
}

// NewClient returns a client whose dialer resolves through a shared DNS cache.
func NewClient(cfg config.KnowledgeConfig, resolver *dnscache.Resolver) *Client {
	if resolver == nil {
		resolver = &dnscache.Resolver{}
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var lastErr error
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			if lastErr == nil {
				lastErr = &net.DNSError{Err: "no addresses", Name: host}
			}
			return nil, lastErr
		},
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return newClient(cfg, &http.Client{Transport: transport})
}

func newClient(cfg config.KnowledgeConfig, hc *http.Client) *Client {
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		spaceID: cfg.SpaceID,
		http:    hc,
	}
}

func (c *Client) System() model.AccessSystem { return model.AccessKnowledgeBase }

func (c *Client) Grant(ctx context.Context, identity string) error {
	if err := c.ready(identity); err != nil {
		return err
	}
	body, _ := json.Marshal(map[string]string{"email": identity, "role": "reader"})
	status, err := c.do(ctx, http.MethodPost, c.membersURL(""), body)
	if err != nil {
		return err
	}
	// 409: already a member, which is the state we want
	if status == http.StatusConflict {
		return nil
	}
	return expect(status, http.StatusOK, http.StatusCreated, http.StatusNoContent)
}

func (c *Client) Revoke(ctx context.Context, identity string) error {
	if err := c.ready(identity); err != nil {
		return err
	}
	status, err := c.do(ctx, http.MethodDelete, c.membersURL(identity), nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	return expect(status, http.StatusOK, http.StatusNoContent)
}

func (c *Client) Check(ctx context.Context, identity string) (bool, error) {
	if err := c.ready(identity); err != nil {
		return false, err
	}
	status, err := c.do(ctx, http.MethodGet, c.membersURL(identity), nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, expect(status)
}

func (c *Client) ready(identity string) error {
	if c.base == "" || c.spaceID == "" {
		return domain.ErrNotConfigured
	}
	if !strings.Contains(identity, "@") {
		return fmt.Errorf("%w: knowledge base identity %q", domain.ErrIdentityMissing, identity)
	}
	return nil
}

func (c *Client) membersURL(email string) string {
	u := c.base + "/api/spaces/" + url.PathEscape(c.spaceID) + "/members"
	if email != "" {
		u += "/" + url.PathEscape(email)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) (int, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}

func expect(status int, ok ...int) error {
	for _, s := range ok {
		if status == s {
			return nil
		}
	}
	return fmt.Errorf("%w: knowledge base answered %d", domain.ErrProviderFailed, status)
}
