// Package server defines the identifiers, sentinel errors and small helpers
// shared by the coordinator, the agents and the transport adapter.
package server

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// SessionID identifies one client connection for its whole lifetime. It is
// minted by the coordinator when the connection is accepted and never reused.
type SessionID = uuid.UUID

// Errors surfaced to clients inside Response(Err(...)). Their text is the
// reason the client sees.
var (
	ErrNameTaken            = errors.New("name taken")
	ErrAlreadyNamed         = errors.New("username already set")
	ErrEmptyName            = errors.New("username must not be empty")
	ErrRecipientMissing     = errors.New("recipient missing")
	ErrRecipientUnavailable = errors.New("recipient unavailable")
	ErrSenderUnnamed        = errors.New("set a username before sending messages")
)

// Internal errors.
var (
	ErrUnknownSession     = errors.New("unknown session")
	ErrCoordinatorStopped = errors.New("coordinator is not running")
	ErrAlreadyRunning     = errors.New("coordinator already running")
	ErrDeliveryFailed     = errors.New("delivery to agent failed")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrTransportClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
