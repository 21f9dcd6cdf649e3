// Package client talks to a running pmdeck server over its HTTP API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Client provides HTTP client functionality to communicate with the pmdeck daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	CACert     string // CA certificate file path
	ServerName string // Server name for verification
	SkipVerify bool
}

const (
	DefaultBaseURL = "http://127.0.0.1:9615/api"
	DefaultTimeout = 60 * time.Second
)

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout}
}

// APIError is a non-200 reply from a read endpoint.
type APIError struct {
	Status int
	Code   string
	Msg    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Msg)
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.TLS != nil || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.Version(ctx)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	return true
}

func (c *Client) List(ctx context.Context) ([]ProcessInfo, error) {
	var out []ProcessInfo
	err := c.doJSON(ctx, http.MethodGet, "/processes", nil, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id string) (ProcessInfo, error) {
	var out ProcessInfo
	err := c.doJSON(ctx, http.MethodGet, "/processes/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Logs fetches up to lines trailing lines per stream; 0 fetches all retained.
func (c *Client) Logs(ctx context.Context, id string, lines int) (Logs, error) {
	p := "/processes/" + url.PathEscape(id) + "/logs"
	if lines > 0 {
		p += "?lines=" + strconv.Itoa(lines)
	}
	var out Logs
	err := c.doJSON(ctx, http.MethodGet, p, nil, &out)
	return out, err
}

func (c *Client) Metrics(ctx context.Context) (Metrics, error) {
	var out Metrics
	err := c.doJSON(ctx, http.MethodGet, "/metrics/summary", nil, &out)
	return out, err
}

func (c *Client) Version(ctx context.Context) (Version, error) {
	var out Version
	err := c.doJSON(ctx, http.MethodGet, "/version", nil, &out)
	return out, err
}

func (c *Client) Add(ctx context.Context, req AddRequest) (OperationResult, error) {
	c.logger.Debug("Adding process", "name", req.Name, "script", req.Script, "instances", req.Instances)
	return c.operation(ctx, http.MethodPost, "/processes", req)
}

// Update patches a process. restart nil follows the server policy.
func (c *Client) Update(ctx context.Context, id string, req UpdateRequest, restart *bool) (OperationResult, error) {
	p := "/processes/" + url.PathEscape(id)
	if restart != nil {
		p += "?restart=" + strconv.FormatBool(*restart)
	}
	return c.operation(ctx, http.MethodPut, p, req)
}

func (c *Client) Delete(ctx context.Context, id string) (OperationResult, error) {
	return c.operation(ctx, http.MethodDelete, "/processes/"+url.PathEscape(id), nil)
}

func (c *Client) Start(ctx context.Context, id string) (OperationResult, error) {
	return c.operation(ctx, http.MethodPost, "/processes/"+url.PathEscape(id)+"/start", nil)
}

func (c *Client) Stop(ctx context.Context, id string) (OperationResult, error) {
	return c.operation(ctx, http.MethodPost, "/processes/"+url.PathEscape(id)+"/stop", nil)
}

func (c *Client) Restart(ctx context.Context, id string) (OperationResult, error) {
	return c.operation(ctx, http.MethodPost, "/processes/"+url.PathEscape(id)+"/restart", nil)
}

func (c *Client) StartAll(ctx context.Context) (OperationResult, error) {
	return c.operation(ctx, http.MethodPost, "/all/start", nil)
}

func (c *Client) StopAll(ctx context.Context) (OperationResult, error) {
	return c.operation(ctx, http.MethodPost, "/all/stop", nil)
}

func (c *Client) RestartAll(ctx context.Context) (OperationResult, error) {
	return c.operation(ctx, http.MethodPost, "/all/restart", nil)
}

// operation runs a mutating call. A failed operation is reported in the
// result, not as an error; err is only set when no result could be read.
func (c *Client) operation(ctx context.Context, method, path string, body any) (OperationResult, error) {
	var out OperationResult
	err := c.doJSON(ctx, method, path, body, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest && out.Message != "" {
		return out, nil
	}
	return out, err
}

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}
	if config.TLS != nil {
		tlsConfig.InsecureSkipVerify = config.TLS.SkipVerify
		tlsConfig.ServerName = config.TLS.ServerName
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}
	}
	return tlsConfig, nil
}

func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = caCertPool
	return nil
}

// doJSON performs one request. out is decoded on 200 and also on 400 so a
// validation OperationResult reaches the caller.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", u)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return c.handleErrorResponse(resp.StatusCode, raw, out)
}

func (c *Client) handleErrorResponse(status int, raw []byte, out any) error {
	if status == http.StatusBadRequest && out != nil {
		_ = json.Unmarshal(raw, out)
	}
	var errorResp ErrorResponse
	if err := json.Unmarshal(raw, &errorResp); err != nil || errorResp.Error == "" {
		c.logger.Error("Failed to decode error response", "status", status)
		return &APIError{Status: status, Msg: http.StatusText(status)}
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", status)
	return &APIError{Status: status, Code: errorResp.Code, Msg: errorResp.Error}
}

// FormatID renders an id the way the API expects it in paths.
func FormatID(id int64) string { return strconv.FormatInt(id, 10) }
