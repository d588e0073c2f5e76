package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"leaderboardAPI/internal/config"
)

// Command is a single store command in Upstash REST array form,
// e.g. ["HGET", "best_times", "alice"].
type Command []string

// Error is returned when the store answers with a non-success status or
// reports a command error in the response body.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("kv request failed: %d", e.Status)
	}
	return fmt.Sprintf("kv request failed: %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
}

func New(cfg config.Store) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		timeout:    cfg.Timeout,
		httpClient: http.DefaultClient,
	}
	if cfg.MaxRPS > 0 {
		burst := int(cfg.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
	}
	return c
}

type reply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// Do runs one command and returns its raw JSON result.
func (c *Client) Do(ctx context.Context, cmd Command) (json.RawMessage, error) {
	if len(cmd) == 0 {
		return nil, fmt.Errorf("kv: empty command")
	}

	body, err := c.send(ctx, "", strings.ToLower(cmd[0]), cmd)
	if err != nil {
		return nil, err
	}

	var r reply
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to decode %s reply: %w", cmd[0], err)
	}
	if r.Error != "" {
		return nil, &Error{Status: http.StatusOK, Message: r.Error}
	}
	return r.Result, nil
}

// MultiExec runs the commands inside a single store transaction.
func (c *Client) MultiExec(ctx context.Context, cmds ...Command) ([]json.RawMessage, error) {
	if len(cmds) == 0 {
		return nil, nil
	}

	body, err := c.send(ctx, "/multi-exec", "multi-exec", cmds)
	if err != nil {
		return nil, err
	}

	var replies []reply
	if err := json.Unmarshal(body, &replies); err != nil {
		return nil, fmt.Errorf("failed to decode multi-exec reply: %w", err)
	}
	if len(replies) != len(cmds) {
		return nil, fmt.Errorf("multi-exec returned %d replies for %d commands", len(replies), len(cmds))
	}

	results := make([]json.RawMessage, len(replies))
	for i, r := range replies {
		if r.Error != "" {
			return nil, &Error{Status: http.StatusOK, Message: fmt.Sprintf("%s: %s", cmds[i][0], r.Error)}
		}
		results[i] = r.Result
	}
	return results, nil
}

func (c *Client) send(ctx context.Context, path, label string, payload any) ([]byte, error) {
	start := time.Now()
	status := "network_error"
	defer func() {
		observeCommand(label, status, time.Since(start))
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("kv throttle: %w", err)
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", label, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", label, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kv %s request: %w", label, err)
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s reply: %w", label, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var r reply
		_ = json.Unmarshal(body, &r)
		return nil, &Error{Status: resp.StatusCode, Message: r.Error}
	}

	return body, nil
}
