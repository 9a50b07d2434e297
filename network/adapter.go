package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"espmonitor/config"
)

// maxResponseBody bounds how much of a router reply is read
const maxResponseBody = 64 * 1024

// Response is a router reply as seen by a success predicate
type Response struct {
	StatusCode int
	Body       []byte
}

// Predicate decides whether a router reply is the router's success indicator
type Predicate func(Response) bool

// StatusOK accepts any 2xx reply
func StatusOK() Predicate {
	return func(r Response) bool {
		return r.StatusCode >= 200 && r.StatusCode < 300
	}
}

// BodyContains accepts a 2xx reply whose body contains text
func BodyContains(text string) Predicate {
	ok := StatusOK()
	return func(r Response) bool {
		return ok(r) && bytes.Contains(r.Body, []byte(text))
	}
}

// JSONFieldEquals accepts a 2xx JSON object reply whose top-level field
// renders as value. Numbers and booleans compare by their JSON text.
func JSONFieldEquals(field, value string) Predicate {
	ok := StatusOK()
	return func(r Response) bool {
		if !ok(r) {
			return false
		}

		dec := json.NewDecoder(bytes.NewReader(r.Body))
		dec.UseNumber()

		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return false
		}
		v, found := obj[field]
		if !found || v == nil {
			return false
		}
		return fmt.Sprint(v) == value
	}
}

// Adapter speaks one router vendor's management API. Implementations use the
// given client so its cookie jar carries the login session between calls.
type Adapter interface {
	// Name returns the vendor name
	Name() string
	// Login authenticates the client's session
	Login(ctx context.Context, client *http.Client, baseURL, username, password string) (Response, error)
	// SetAccess blocks (allow=false) or unblocks (allow=true) mac
	SetAccess(ctx context.Context, client *http.Client, baseURL, mac string, allow bool) (Response, error)
	// Confirmed reports whether a SetAccess reply is the router's success indicator
	Confirmed(resp Response) bool
}

// FormAdapter drives routers exposing form-encoded POST endpoints for login
// and per-MAC block/unblock
type FormAdapter struct {
	LoginPath     string
	BlockPath     string
	UnblockPath   string
	UsernameField string
	PasswordField string
	MACField      string
	Success       Predicate
}

func (f *FormAdapter) Name() string { return "form" }

func (f *FormAdapter) Login(ctx context.Context, client *http.Client, baseURL, username, password string) (Response, error) {
	form := url.Values{}
	form.Set(f.UsernameField, username)
	form.Set(f.PasswordField, password)
	return postForm(ctx, client, baseURL+f.LoginPath, form)
}

func (f *FormAdapter) SetAccess(ctx context.Context, client *http.Client, baseURL, mac string, allow bool) (Response, error) {
	path := f.BlockPath
	if allow {
		path = f.UnblockPath
	}

	form := url.Values{}
	form.Set(f.MACField, mac)
	return postForm(ctx, client, baseURL+path, form)
}

func (f *FormAdapter) Confirmed(resp Response) bool {
	if f.Success == nil {
		return StatusOK()(resp)
	}
	return f.Success(resp)
}

func postForm(ctx context.Context, client *http.Client, target string, form url.Values) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return Response{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Response{StatusCode: resp.StatusCode}, fmt.Errorf("failed to read router response: %w", err)
	}
	return Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// NewAdapter builds the adapter for cfg.Vendor
func NewAdapter(cfg config.RouterConfig) (Adapter, error) {
	switch cfg.Vendor {
	case "form":
		var success Predicate
		switch {
		case cfg.SuccessText != "":
			success = BodyContains(cfg.SuccessText)
		case cfg.SuccessField != "":
			success = JSONFieldEquals(cfg.SuccessField, cfg.SuccessValue)
		default:
			success = StatusOK()
		}
		return &FormAdapter{
			LoginPath:     cfg.LoginPath,
			BlockPath:     cfg.BlockPath,
			UnblockPath:   cfg.UnblockPath,
			UsernameField: cfg.UsernameField,
			PasswordField: cfg.PasswordField,
			MACField:      cfg.MACField,
			Success:       success,
		}, nil
	default:
		return nil, fmt.Errorf("no router adapter for vendor %q", cfg.Vendor)
	}
}
