package execclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	appErr "arena/pkg/errors"
)

const (
	defaultCallMargin     = 10 * time.Second
	defaultMaxRetries     = 2
	defaultRetryBackoff   = 500 * time.Millisecond
	defaultMaxCodeBytes   = 256 << 10
	defaultMaxStdinBytes  = 8 << 20
	defaultOutputLimit    = 16 << 20
	maxResponseBodyBytes  = 64 << 20
)

// ErrServiceUnavailable reports that the execution service could not
// produce an authoritative result after all retries.
var ErrServiceUnavailable = appErr.New(appErr.ExecServiceUnavailable)

// Config configures the execution service client.
type Config struct {
	BaseURL      string        `yaml:"base_url"`
	AuthToken    string        `yaml:"auth_token"`
	CallMargin   time.Duration `yaml:"call_margin"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	MaxCodeBytes int           `yaml:"max_code_bytes"`
	MaxStdin     int           `yaml:"max_stdin_bytes"`
	OutputLimit  int64         `yaml:"output_limit_bytes"`
}

// Client talks to the external execution service over HTTP. Each Run call
// executes one program against one stdin inside the sandbox.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates an execution service client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	if cfg.CallMargin <= 0 {
		cfg.CallMargin = defaultCallMargin
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.MaxStdin <= 0 {
		cfg.MaxStdin = defaultMaxStdinBytes
	}
	if cfg.OutputLimit <= 0 {
		cfg.OutputLimit = defaultOutputLimit
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
	}, nil
}

// MaxCodeBytes returns the code size ceiling enforced before any call.
func (c *Client) MaxCodeBytes() int { return c.cfg.MaxCodeBytes }

// Run executes the program once. Transport failures and 5xx responses are
// retried with linear backoff; any 2xx body is an authoritative result
// and is never retried. The per-call timeout is the case time limit plus
// a fixed margin so a hung sandbox cannot stall the judging pipeline.
func (c *Client) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if len(req.Code) > c.cfg.MaxCodeBytes {
		return nil, appErr.Newf(appErr.CodeTooLarge, "code size %d exceeds limit %d", len(req.Code), c.cfg.MaxCodeBytes)
	}
	if len(req.Stdin) > c.cfg.MaxStdin {
		return nil, appErr.Newf(appErr.StdinTooLarge, "stdin size %d exceeds limit %d", len(req.Stdin), c.cfg.MaxStdin)
	}
	if req.TimeLimitMS <= 0 {
		return nil, appErr.ValidationError("time_limit_ms", "must be positive")
	}
	if req.OutputLimit <= 0 {
		req.OutputLimit = c.cfg.OutputLimit
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.InvalidParams)
	}

	callTimeout := time.Duration(req.TimeLimitMS)*time.Millisecond + c.cfg.CallMargin

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * c.cfg.RetryBackoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		result, retryable, err := c.runOnce(ctx, body, callTimeout)
		if err == nil {
			return result, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, appErr.Wrapf(lastErr, appErr.ExecServiceUnavailable, "execution service unavailable after %d attempts", c.cfg.MaxRetries+1)
}

func (c *Client) runOnce(ctx context.Context, body []byte, timeout time.Duration) (*RunResult, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, false, appErr.Wrap(err, appErr.InternalServerError)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("execution service returned %d: %s", resp.StatusCode, truncate(string(data), 256))
	case resp.StatusCode >= 400:
		return nil, false, appErr.Newf(appErr.JudgeSystemError, "execution service rejected request with %d: %s", resp.StatusCode, truncate(string(data), 256))
	}

	var result RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, true, fmt.Errorf("decode execution result: %w", err)
	}
	if result.Status == StatusInternalError {
		return nil, true, fmt.Errorf("execution service internal error: %s", truncate(result.Stderr, 256))
	}
	return &result, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
