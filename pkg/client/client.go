package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client talks to a nodebase bridge server.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	dialer  *websocket.Dialer
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Token   string       // bearer token, when the server requires one
	Logger  *slog.Logger // Optional logger for client operations
	TLS     *TLSClientConfig
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	CACert     string // CA certificate file path, e.g. the server's tls_ca.crt
	ServerName string // Server name for verification
	SkipVerify bool   // Skip certificate verification
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a client. It fails only when the TLS settings can't be loaded.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: config.Timeout,
	}
	if config.TLS != nil {
		tlsConfig, err := setupClientTLS(config.TLS)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
		dialer.TLSClientConfig = tlsConfig
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		token:   config.Token,
		logger:  config.Logger,
		dialer:  dialer,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}, nil
}

// IsReachable reports whether a bridge answers at the base URL.
func (c *Client) IsReachable(ctx context.Context) bool {
	var arch string
	if err := c.Call(ctx, "util.arch", nil, &arch); err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	return true
}

// Call invokes one bridge method. When out is non-nil the result is decoded
// into it.
func (c *Client) Call(ctx context.Context, method string, args any, out any) error {
	var body []byte
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = b
	}

	u := c.baseURL + "/call/" + url.PathEscape(method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.decodeError(resp)
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// Start launches a process under req.Name.
func (c *Client) Start(ctx context.Context, req StartRequest) error {
	c.logger.Debug("Starting process", "name", req.Name, "command", req.Command)
	return c.Call(ctx, "app.start", req, nil)
}

// Stop terminates the named process; unknown names are not an error.
func (c *Client) Stop(ctx context.Context, name string) error {
	return c.Call(ctx, "app.stop", map[string]string{"name": name}, nil)
}

// Restart relaunches the named process with its last command. It reports
// false when nothing is registered under name.
func (c *Client) Restart(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := c.Call(ctx, "app.restart", map[string]string{"name": name}, &ok)
	return ok, err
}

// Stat returns the status label of the named process, or "" when unknown.
func (c *Client) Stat(ctx context.Context, name string) (string, error) {
	var res struct {
		Stat string `json:"stat"`
	}
	if err := c.Call(ctx, "app.stat", map[string]string{"name": name}, &res); err != nil {
		return "", err
	}
	return res.Stat, nil
}

// List returns every registered process, sorted by name.
func (c *Client) List(ctx context.Context) ([]App, error) {
	var apps []App
	if err := c.Call(ctx, "app.list", nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// Events streams lifecycle events to fn until ctx is done, the server
// closes the stream, or fn returns an error. Connecting replaces any other
// event subscriber on the server.
func (c *Client) Events(ctx context.Context, fn func(Event) error) error {
	u, err := c.eventsURL()
	if err != nil {
		return err
	}
	header := http.Header{}
	c.authorize(header)

	conn, resp, err := c.dialer.DialContext(ctx, u, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return &APIError{Status: resp.StatusCode}
		}
		return fmt.Errorf("dial events: %w", err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var e Event
		if err := conn.ReadJSON(&e); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

func (c *Client) eventsURL() (string, error) {
	u, err := url.Parse(c.baseURL + "/events")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func (c *Client) authorize(h http.Header) {
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) decodeError(resp *http.Response) error {
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode}
	}
	er.Error.Status = resp.StatusCode
	c.logger.Debug("API request failed", "code", er.Error.Code, "status", resp.StatusCode)
	return &er.Error
}

// IsNotImplemented reports whether err is the bridge's unknown-method error.
func IsNotImplemented(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == "NOT_IMPLEMENTED"
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config *TLSClientConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if config.SkipVerify {
		// #nosec G402 explicitly requested by the caller
		tlsConfig.InsecureSkipVerify = true
	}
	if config.ServerName != "" {
		tlsConfig.ServerName = config.ServerName
	}
	if config.CACert != "" {
		if err := loadCACert(tlsConfig, config.CACert); err != nil {
			return nil, fmt.Errorf("failed to load CA certificate: %w", err)
		}
	}
	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return errors.New("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return nil
}
