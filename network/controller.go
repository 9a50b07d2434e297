package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"espmonitor/output"
)

// Credentials identify the device and the router for one call. They are
// never stored; the password is redacted from logs.
type Credentials struct {
	MACAddress string `json:"mac_address"`
	RouterHost string `json:"router_host"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

// LogValue implements slog.LogValuer
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("mac", c.MACAddress),
		slog.String("router", c.RouterHost),
		slog.String("username", c.Username),
	)
}

// State is the last router-confirmed access state of the device
type State struct {
	Connected    bool
	LastKnownMAC string
}

// ControllerConfig wires a Controller
type ControllerConfig struct {
	Adapter        Adapter
	Scheme         string        // used when RouterHost carries none
	RequestTimeout time.Duration // per router HTTP call
	SessionTTL     time.Duration
	SkipTLSVerify  bool
	Transport      http.RoundTripper // optional, for tests
	OnEvent        output.EventCallback
	Logger         *slog.Logger
}

// Controller blocks and unblocks a device's MAC on the router. Calls are not
// serialized against each other; the last confirmed answer wins.
type Controller struct {
	adapter   Adapter
	scheme    string
	timeout   time.Duration
	transport http.RoundTripper
	sessions  *SessionCache
	onEvent   output.EventCallback
	logger    *slog.Logger

	mu    sync.RWMutex
	state State
}

// NewController creates a controller in the {Connected: false} state
func NewController(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "http"
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transport := cfg.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.SkipTLSVerify {
			// #nosec G402 -- consumer routers ship self-signed certificates
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		transport = t
	}

	return &Controller{
		adapter:   cfg.Adapter,
		scheme:    scheme,
		timeout:   timeout,
		transport: transport,
		sessions:  NewSessionCache(cfg.SessionTTL),
		onEvent:   cfg.OnEvent,
		logger:    logger,
	}
}

// Connect unblocks the device on the router
func (c *Controller) Connect(ctx context.Context, creds Credentials) error {
	return c.control(ctx, ActionConnect, creds)
}

// Disconnect blocks the device on the router
func (c *Controller) Disconnect(ctx context.Context, creds Credentials) error {
	return c.control(ctx, ActionDisconnect, creds)
}

// State returns the last confirmed state
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// control runs the direct attempt, then one login and one retry. Only the
// access reply's success indicator decides the outcome.
func (c *Controller) control(ctx context.Context, action Action, creds Credentials) error {
	mac, err := NormalizeMAC(creds.MACAddress)
	if err != nil {
		return c.failed(newControlError(action, creds.MACAddress, nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)))
	}
	base, err := c.baseURL(creds.RouterHost)
	if err != nil {
		return c.failed(newControlError(action, mac, nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)))
	}

	jar := c.sessions.Jar(base.Host)
	client := &http.Client{
		Jar:       jar,
		Timeout:   c.timeout,
		Transport: c.transport,
	}
	baseURL := base.String()
	allow := action == ActionConnect
	logger := c.logger.With("action", action, "mac", mac, "router", base.Host)

	resp, err := c.attempt(ctx, client, baseURL, mac, allow)
	if err == nil {
		c.confirm(action, mac)
		logger.Info("Router confirmed access change")
		return nil
	}
	logger.Debug("Direct attempt not confirmed, logging in", "error", err, "status", resp.StatusCode)

	if lresp, lerr := c.login(ctx, client, baseURL, creds); lerr != nil {
		c.sessions.Clear(base.Host)
		return c.failed(newControlError(action, mac, lresp, lerr))
	}
	c.sessions.Touch(base.Host, jar)

	resp, err = c.attempt(ctx, client, baseURL, mac, allow)
	if err != nil {
		return c.failed(newControlError(action, mac, resp, err))
	}

	c.confirm(action, mac)
	logger.Info("Router confirmed access change after login")
	return nil
}

// attempt issues one block/unblock call. A non-nil *Response accompanies
// ErrRouterRejected.
func (c *Controller) attempt(ctx context.Context, client *http.Client, baseURL, mac string, allow bool) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.adapter.SetAccess(ctx, client, baseURL, mac, allow)
	if err != nil {
		return &resp, fmt.Errorf("router request failed: %w", err)
	}
	if !c.adapter.Confirmed(resp) {
		return &resp, ErrRouterRejected
	}
	return &resp, nil
}

func (c *Controller) login(ctx context.Context, client *http.Client, baseURL string, creds Credentials) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.adapter.Login(ctx, client, baseURL, creds.Username, creds.Password)
	if err != nil {
		return &resp, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	// Login pages rarely carry the access success indicator; any 2xx counts
	if !StatusOK()(resp) {
		return &resp, ErrLoginFailed
	}
	return &resp, nil
}

func (c *Controller) confirm(action Action, mac string) {
	connected := action == ActionConnect

	c.mu.Lock()
	c.state = State{Connected: connected, LastKnownMAC: mac}
	c.mu.Unlock()

	evType := output.EventNetworkDisconnected
	if connected {
		evType = output.EventNetworkConnected
	}
	c.emitEvent(output.Event{
		Type:    evType,
		MAC:     mac,
		Message: fmt.Sprintf("router confirmed %s", action),
	})
}

func (c *Controller) failed(ce *ControlError) error {
	c.logger.Warn("Network control failed",
		"action", ce.Action,
		"mac", ce.MAC,
		"status", ce.StatusCode,
		"error", ce.Cause)
	c.emitEvent(output.Event{
		Type:    output.EventNetworkControlFailed,
		MAC:     ce.MAC,
		Message: ce.Error(),
		Details: map[string]any{"action": string(ce.Action), "status": ce.StatusCode},
	})
	return ce
}

func (c *Controller) emitEvent(ev output.Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

// baseURL turns a router host ("192.168.1.1", "router.lan:8080" or a full
// URL) into scheme://host
func (c *Controller) baseURL(host string) (*url.URL, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errors.New("router_host is required")
	}
	if !strings.Contains(host, "://") {
		host = c.scheme + "://" + host
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid router_host: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid router_host %q", host)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("router_host scheme must be http or https, got %q", u.Scheme)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

// NormalizeMAC parses a 48-bit hardware address in any common notation and
// returns it upper-case and colon separated
func NormalizeMAC(mac string) (string, error) {
	mac = strings.TrimSpace(mac)
	if mac == "" {
		return "", errors.New("mac_address is required")
	}

	hw, err := net.ParseMAC(mac)
	if err != nil {
		return "", fmt.Errorf("invalid mac_address %q", mac)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("mac_address %q is not a 48-bit address", mac)
	}
	return strings.ToUpper(hw.String()), nil
}
