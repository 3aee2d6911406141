package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout resumes a flow whose deadline elapsed before a redirect arrived.
	ErrTimeout = errors.New("authorization flow timed out")

	// ErrCancelled resumes a flow that was aborted by its caller or by shutdown.
	ErrCancelled = errors.New("authorization flow cancelled")

	// ErrUnregisteredRedirect rejects a flow expecting a redirect URI the
	// manager was not configured to consume.
	ErrUnregisteredRedirect = errors.New("redirect URI is not registered")

	ErrDuplicateToken = errors.New("correlation token already pending")
	ErrClosed         = errors.New("flow manager closed")
)

// LaunchError reports that the external user-agent could not present the
// authorization request.
type LaunchError struct {
	URI string
	Err error
}

func (e *LaunchError) Error() string {
	return "failed to launch user agent: " + e.Err.Error()
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ServerError is an error payload returned by the authorization server on the
// redirect (RFC 6749 section 4.1.2.1).
type ServerError struct {
	Code        string
	Description string
	URI         string
}

func (e *ServerError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization server returned %s: %s", e.Code, e.Description)
	}
	return "authorization server returned " + e.Code
}

// MalformedRedirectError describes a redirect that could not be matched to any
// flow. It is only ever logged.
type MalformedRedirectError struct {
	URI    string
	Reason string
	Err    error
}

func (e *MalformedRedirectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed redirect: %s: %v", e.Reason, e.Err)
	}
	return "malformed redirect: " + e.Reason
}

func (e *MalformedRedirectError) Unwrap() error {
	return e.Err
}
