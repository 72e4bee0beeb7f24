package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeConfiguration indicates a missing or malformed startup field
	ErrTypeConfiguration ErrorType = iota
	// ErrTypeIdentityUnavailable indicates that neither the credential file nor provisioning produced a credential
	ErrTypeIdentityUnavailable
	// ErrTypeProvisioning indicates the registration exchange with the server failed
	ErrTypeProvisioning
	// ErrTypeTransport indicates a request never produced an HTTP response
	ErrTypeTransport
	// ErrTypeRemoteRejection indicates the server answered with a non-2xx status
	ErrTypeRemoteRejection
	// ErrTypeParse indicates a malformed file or response body
	ErrTypeParse
)

// NetworkErrorSubtype provides more specific transport error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeConfiguration:
		return "Configuration Error"
	case ErrTypeIdentityUnavailable:
		return "Identity Unavailable"
	case ErrTypeProvisioning:
		return "Provisioning Failed"
	case ErrTypeTransport:
		return "Transport Failure"
	case ErrTypeRemoteRejection:
		return "Remote Rejection"
	case ErrTypeParse:
		return "Parse Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is returned by every Connection operation that fails.
type Error struct {
	Type           ErrorType           // Category of error
	Op             string              // Operation that failed (ping, push, provision, ...)
	Message        string              // Human-readable error message
	StatusCode     int                 // HTTP status code (remote rejections only)
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // More specific transport error type
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Type.String())
	if e.Op != "" {
		b.WriteString(" (")
		b.WriteString(e.Op)
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError turns a transport error into an *Error with a network subtype.
func ClassifyNetworkError(op string, err error) *Error {
	if err == nil {
		return nil
	}

	e := &Error{
		Type:           ErrTypeTransport,
		Op:             op,
		Message:        "network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
	}

	var dnsErr *net.DNSError
	var opErr *net.OpError
	switch {
	case os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
		e.Message = "request timed out"
		e.NetworkSubtype = NetworkErrorTimeout
	case errors.As(err, &dnsErr):
		e.Message = fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name)
		e.NetworkSubtype = NetworkErrorDNS
	case errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED):
		e.Message = "server refused connection"
		e.NetworkSubtype = NetworkErrorConnectionRefused
	case errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.EHOSTUNREACH):
		e.Message = "host unreachable"
		e.NetworkSubtype = NetworkErrorHostUnreachable
	case errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ENETUNREACH):
		e.Message = "network unreachable"
		e.NetworkSubtype = NetworkErrorNetworkUnreachable
	}

	return e
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string) *Error {
	return &Error{Type: ErrTypeConfiguration, Op: "validate", Message: message}
}

// NewProvisioningError creates a provisioning error
func NewProvisioningError(message string, err error) *Error {
	return &Error{Type: ErrTypeProvisioning, Op: "provision", Message: message, Err: err}
}

// NewIdentityUnavailableError creates the terminal construction error
func NewIdentityUnavailableError(message string, err error) *Error {
	return &Error{Type: ErrTypeIdentityUnavailable, Op: "identity", Message: message, Err: err}
}

// NewRemoteRejectionError creates an error for a non-2xx response
func NewRemoteRejectionError(op string, statusCode int) *Error {
	return &Error{
		Type:       ErrTypeRemoteRejection,
		Op:         op,
		Message:    fmt.Sprintf("server responded with status %d", statusCode),
		StatusCode: statusCode,
	}
}

// NewParseError creates a parsing error
func NewParseError(op, message string, err error) *Error {
	return &Error{Type: ErrTypeParse, Op: op, Message: message, Err: err}
}

func errorType(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return 0, false
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeConfiguration
}

// IsIdentityUnavailable checks if an error is the terminal identity error
func IsIdentityUnavailable(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeIdentityUnavailable
}

// IsProvisioningError checks if err is, or wraps, a provisioning failure.
// An IdentityUnavailable error caused by provisioning matches too.
func IsProvisioningError(err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == ErrTypeProvisioning {
			return true
		}
		err = e.Err
	}
	return false
}

// IsTransportError checks if an error is a transport failure
func IsTransportError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeTransport
}

// IsRemoteRejection checks if an error is a non-2xx response
func IsRemoteRejection(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeRemoteRejection
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeParse
}

// Hint returns operator-facing troubleshooting advice for an error
func Hint(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "An unexpected error occurred. Check the log output for details."
	}

	switch e.Type {
	case ErrTypeConfiguration:
		return strings.Join([]string{
			"The connection configuration is incomplete.",
			"Troubleshooting:",
			"  • Set credentials_path, url_base and device_serial",
			"  • Check the config file location with --config",
			"  • Environment variables use the SENSORLINK_ prefix (e.g. SENSORLINK_URL_BASE)",
		}, "\n")

	case ErrTypeIdentityUnavailable, ErrTypeProvisioning:
		return strings.Join([]string{
			"The device has no usable credential and could not register.",
			"Troubleshooting:",
			"  • Verify provisioning_token_path points to the one-time token file",
			"  • The token file must contain a single JSON value (e.g. \"abc123\")",
			"  • Make sure the credentials directory is writable",
			"  • Ask the server operator whether the token was already used",
		}, "\n")

	case ErrTypeTransport:
		hint := []string{"The server could not be reached."}
		switch e.NetworkSubtype {
		case NetworkErrorTimeout:
			hint = append(hint, "Troubleshooting:",
				"  • The uplink may be congested; the next attempt may succeed",
				"  • Check signal strength of the cellular/WiFi modem")
		case NetworkErrorDNS:
			hint = append(hint, "Troubleshooting:",
				"  • Check url_base for typos",
				"  • Verify the device has a working DNS resolver")
		case NetworkErrorConnectionRefused:
			hint = append(hint, "Troubleshooting:",
				"  • The server is reachable but not listening on that port",
				"  • Verify the port in url_base")
		default:
			hint = append(hint, "Troubleshooting:",
				"  • Check the network connection of the device",
				"  • Verify url_base")
		}
		return strings.Join(hint, "\n")

	case ErrTypeRemoteRejection:
		if e.StatusCode == 401 || e.StatusCode == 403 {
			return "The server rejected the device token. Re-provision with 'sensorlink provision --force'."
		}
		if e.StatusCode >= 500 {
			return fmt.Sprintf("The server failed to handle the request (HTTP %d). Retry later.", e.StatusCode)
		}
		return fmt.Sprintf("The server rejected the request (HTTP %d).", e.StatusCode)

	case ErrTypeParse:
		return "A file or server response could not be parsed. Check its contents."

	default:
		return "An error occurred. Please check the error message for details."
	}
}
