// Package errors provides domain-specific error types for twbridge.
//
// The taxonomy follows the life of a bridge call: precondition and
// argument errors are raised before any I/O, transport errors come from
// opening the websocket, and protocol errors come back from the
// correlator (timeouts, disconnects, server-reported failures).
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

// Precondition failures.
var (
	ErrNotConnected   = errors.New("not connected")
	ErrPlayerNotBound = errors.New("player not bound")
)

// Transport failures.  The messages are fixed so hosts can show them
// verbatim.
var (
	ErrOpenFailed   = errors.New("ws open failed")
	ErrOpenTimeout  = errors.New("ws open timeout")
	ErrTunnelClosed = errors.New("tunnel is closed")
	ErrCircuitOpen  = errors.New("circuit breaker is open")
)

// Protocol failures.
var (
	ErrTimeout       = errors.New("timeout")
	ErrDisconnected  = errors.New("disconnected")
	ErrPairingFailed = errors.New("pairing failed")
)

// SSH failures.
var (
	ErrAuthFailed      = errors.New("authentication failed")
	ErrHostKeyMismatch = errors.New("host key mismatch")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "open", "dial", "write", "read"
	Addr      string // URL or network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "forward"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ArgumentError reports a command argument that failed validation.
// It is always raised before anything is written to the socket.
type ArgumentError struct {
	Arg     string      // argument name as the host knows it ("agent id", "slot")
	Value   interface{} // offending value (nil if missing)
	Message string      // human-readable reason, shown to the end user
}

func (e *ArgumentError) Error() string {
	if e.Value == nil {
		return e.Message
	}
	return fmt.Sprintf("%s (%s=%v)", e.Message, e.Arg, e.Value)
}

// RemoteError carries a failure reported by the bridge server for a
// specific command.
type RemoteError struct {
	Cmd    string
	Reason string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Cmd, e.Reason)
}

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// Missing returns the ArgumentError for a required argument that was
// empty after trimming.
func Missing(arg string) *ArgumentError {
	return &ArgumentError{Arg: arg, Message: arg + " required"}
}

// Invalid returns an ArgumentError for a value outside its accepted set
// or range.
func Invalid(arg string, value interface{}, message string) *ArgumentError {
	return &ArgumentError{Arg: arg, Value: value, Message: message}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.  Transport open
// failures are; validation, precondition and server-reported errors
// are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOpenFailed) || errors.Is(err, ErrOpenTimeout) {
		return true
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsPrecondition reports whether err was raised before any network
// activity because of missing session state or a bad argument.
func IsPrecondition(err error) bool {
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrPlayerNotBound) {
		return true
	}
	var ae *ArgumentError
	return errors.As(err, &ae)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOpenFailed) || errors.Is(err, ErrOpenTimeout) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
