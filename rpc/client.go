package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the control endpoints of one node.
type Client struct {
	base   string
	client *http.Client
}

func NewClient(base string) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// Status returns the http status code of /status. Faulty nodes
// answer 500.
func (c *Client) Status(ctx context.Context) (int, error) {
	code, _, err := c.get(ctx, "/status")
	return code, err
}

func (c *Client) State(ctx context.Context) (StateResponse, error) {
	var st StateResponse
	code, body, err := c.get(ctx, "/getState")
	if err != nil {
		return st, err
	}
	if code != http.StatusOK {
		return st, fmt.Errorf("getState answered %d: %s", code, body)
	}
	err = json.Unmarshal(body, &st)
	return st, err
}

// Start asks the node to start, the returned text describes the
// outcome.
func (c *Client) Start(ctx context.Context) (int, string, error) {
	code, body, err := c.get(ctx, "/start")
	return code, string(body), err
}

func (c *Client) Stop(ctx context.Context) error {
	code, body, err := c.get(ctx, "/stop")
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("stop answered %d: %s", code, body)
	}
	return nil
}
