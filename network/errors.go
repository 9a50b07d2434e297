package network

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is wrapped when the request itself is unusable
	ErrInvalidCredentials = errors.New("invalid network credentials")

	// ErrRouterRejected is wrapped when the router answered without its
	// success indicator
	ErrRouterRejected = errors.New("router did not confirm the request")

	// ErrLoginFailed is wrapped when the router refused the login call
	ErrLoginFailed = errors.New("router login failed")
)

// maxErrorBody bounds the router body kept on a ControlError
const maxErrorBody = 512

// Action is the access change requested from the router
type Action string

const (
	ActionConnect    Action = "connect"
	ActionDisconnect Action = "disconnect"
)

// ControlError reports a connect or disconnect that the router did not
// confirm, after the login retry. StatusCode and Body are set when the router
// answered; a transport failure leaves them empty.
type ControlError struct {
	Action     Action
	MAC        string
	StatusCode int
	Body       string
	Cause      error
}

func (e *ControlError) Error() string {
	target := e.MAC
	if target == "" {
		target = "device"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("network %s failed for %s: %v (status %d)", e.Action, target, e.Cause, e.StatusCode)
	}
	return fmt.Sprintf("network %s failed for %s: %v", e.Action, target, e.Cause)
}

func (e *ControlError) Unwrap() error {
	return e.Cause
}

func newControlError(action Action, mac string, resp *Response, cause error) *ControlError {
	ce := &ControlError{Action: action, MAC: mac, Cause: cause}
	if resp != nil {
		ce.StatusCode = resp.StatusCode
		body := resp.Body
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		ce.Body = string(body)
	}
	return ce
}
