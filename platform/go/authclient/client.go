// Package authclient talks to the external authentication service: it renews
// service tokens for sources calling sibling nodes and fetches users' OAuth
// tokens for external contact providers.
package authclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpclient"
)

// ErrNoExternalToken means the user has not linked the external provider.
var ErrNoExternalToken = errors.New("no external token for user")

const (
	serviceTokenExpiration = time.Hour
	renewMargin            = time.Minute
	externalTokenTTL       = time.Minute
)

// Endpoint locates an authentication service.
type Endpoint struct {
	Host              string `json:"host"`
	Port              int    `json:"port,omitempty"`
	Prefix            string `json:"prefix,omitempty"`
	HTTPS             *bool  `json:"https,omitempty"`
	VerifyCertificate *bool  `json:"verify_certificate,omitempty"`
	Version           string `json:"version,omitempty"`
	KeyFile           string `json:"key_file,omitempty"`
	Username          string `json:"username,omitempty"`
	Password          string `json:"password,omitempty"`
}

// BaseURL returns scheme://host:port/prefix/version.
func (e Endpoint) BaseURL() string {
	scheme := "https"
	if e.HTTPS != nil && !*e.HTTPS {
		scheme = "http"
	}
	host := e.Host
	if e.Port > 0 {
		host = host + ":" + strconv.Itoa(e.Port)
	}
	version := e.Version
	if version == "" {
		version = "0.1"
	}
	path := strings.Trim(e.Prefix, "/")
	if path != "" {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s%s/%s", scheme, host, path, version)
}

// Verify reports whether TLS certificates must be verified.
func (e Endpoint) Verify() bool {
	return e.VerifyCertificate == nil || *e.VerifyCertificate
}

type keyFile struct {
	ServiceID  string `yaml:"service_id"`
	ServiceKey string `yaml:"service_key"`
}

// HTTPClients selects the outbound client for an endpoint's TLS policy.
type HTTPClients interface {
	For(verify bool) *httpclient.Client
}

// Client calls the authentication service.
type Client struct {
	http   HTTPClients
	cache  Cache
	logger *zap.Logger
}

// New constructs a Client. A nil cache uses an in-memory cache.
func New(clients HTTPClients, cache Cache, logger *zap.Logger) *Client {
	if clients == nil {
		panic("authclient: http clients are required")
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{http: clients, cache: cache, logger: logger}
}

// ServiceToken returns a valid token for the service credentials of ep,
// creating a new one when the cached token is close to expiry.
func (c *Client) ServiceToken(ctx context.Context, ep Endpoint) (string, error) {
	username, password, err := credentials(ep)
	if err != nil {
		return "", err
	}

	base := ep.BaseURL()
	key := "svc:" + base + ":" + username
	if token, ok := c.cache.Get(ctx, key); ok {
		return token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/token",
		strings.NewReader(fmt.Sprintf(`{"expiration": %d}`, int(serviceTokenExpiration.Seconds()))))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.For(ep.Verify()).Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrAuthUnreachable, err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("create service token: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Token     string `json:"token"`
			ExpiresAt string `json:"utc_expires_at"`
		} `json:"data"`
	}
	if err := resp.DecodeJSON(&body); err != nil {
		return "", err
	}
	if body.Data.Token == "" {
		return "", errors.New("create service token: empty token")
	}

	ttl := serviceTokenExpiration - renewMargin
	if expires, perr := time.Parse(time.RFC3339Nano, body.Data.ExpiresAt); perr == nil {
		ttl = time.Until(expires) - renewMargin
	}
	c.cache.Set(ctx, key, body.Data.Token, ttl)
	return body.Data.Token, nil
}

// ExternalToken returns the OAuth access token linked by userUUID for
// provider ("google" or "microsoft"). callerToken authenticates the request.
func (c *Client) ExternalToken(ctx context.Context, ep Endpoint, userUUID, provider, callerToken string) (string, error) {
	if userUUID == "" {
		return "", ErrNoExternalToken
	}
	key := "ext:" + provider + ":" + userUUID
	if token, ok := c.cache.Get(ctx, key); ok {
		return token, nil
	}

	endpoint := fmt.Sprintf("%s/users/%s/external/%s", ep.BaseURL(), url.PathEscape(userUUID), url.PathEscape(provider))
	resp, err := c.http.For(ep.Verify()).Get(ctx, endpoint, http.Header{"X-Auth-Token": {callerToken}})
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrAuthUnreachable, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNoExternalToken
	}
	if !resp.OK() {
		return "", fmt.Errorf("fetch %s token: unexpected status %d", provider, resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := resp.DecodeJSON(&body); err != nil {
		return "", err
	}
	if body.AccessToken == "" {
		return "", ErrNoExternalToken
	}

	ttl := externalTokenTTL
	if body.ExpiresIn > 0 {
		ttl = time.Duration(body.ExpiresIn)*time.Second - renewMargin
	}
	c.cache.Set(ctx, key, body.AccessToken, ttl)
	return body.AccessToken, nil
}

func credentials(ep Endpoint) (string, string, error) {
	if ep.KeyFile == "" {
		if ep.Username == "" {
			return "", "", errors.New("auth credentials: key_file or username is required")
		}
		return ep.Username, ep.Password, nil
	}
	raw, err := os.ReadFile(ep.KeyFile)
	if err != nil {
		return "", "", fmt.Errorf("read key file: %w", err)
	}
	var kf keyFile
	if err := yaml.Unmarshal(raw, &kf); err != nil {
		return "", "", fmt.Errorf("parse key file: %w", err)
	}
	if kf.ServiceID == "" {
		return "", "", errors.New("key file: service_id is required")
	}
	return kf.ServiceID, kf.ServiceKey, nil
}
