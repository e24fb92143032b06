// Package confd is a small client for the configuration API of a sibling
// cluster node, shared by the wazo and conference sources.
package confd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/zenGate-Global/palmyra-directory/platform/go/authclient"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpclient"
)

const defaultVersion = "1.1"

// TokenSource issues service tokens for an auth endpoint.
type TokenSource interface {
	ServiceToken(ctx context.Context, ep authclient.Endpoint) (string, error)
}

// Client calls a confd endpoint with a renewed service token.
type Client struct {
	auth   authclient.Endpoint
	confd  authclient.Endpoint
	tokens TokenSource
	http   *httpclient.Client

	mu   sync.Mutex
	uuid string
}

// New builds a Client. The confd API version defaults to 1.1.
func New(auth, confd authclient.Endpoint, tokens TokenSource, clients *httpclient.Pair) (*Client, error) {
	if confd.Host == "" {
		return nil, errors.New("confd: host is required")
	}
	if tokens == nil || clients == nil {
		return nil, errors.New("confd: token source and http clients are required")
	}
	if confd.Version == "" {
		confd.Version = defaultVersion
	}
	return &Client{
		auth:   auth,
		confd:  confd,
		tokens: tokens,
		http:   clients.For(confd.Verify()),
	}, nil
}

// Get fetches path relative to the confd base URL and decodes the JSON answer into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	token, err := c.tokens.ServiceToken(ctx, c.auth)
	if err != nil {
		return err
	}

	endpoint := c.confd.BaseURL() + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	resp, err := c.http.Get(ctx, endpoint, http.Header{
		"X-Auth-Token": {token},
		"Accept":       {"application/json"},
	})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("confd %s: unexpected status %d", path, resp.StatusCode)
	}
	return resp.DecodeJSON(out)
}

// UUID returns the remote node's uuid, fetched once from /infos.
func (c *Client) UUID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uuid != "" {
		return c.uuid, nil
	}

	var infos struct {
		UUID string `json:"uuid"`
	}
	if err := c.Get(ctx, "infos", nil, &infos); err != nil {
		return "", err
	}
	c.uuid = infos.UUID
	return c.uuid, nil
}

// Items is the common envelope of confd collections.
type Items[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}
