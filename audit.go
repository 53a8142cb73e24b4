package goAuthClient

import (
	"context"
	"errors"
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/goAuthClient/internal/audit"
)

// AuditEvent is a structured session lifecycle record.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the manager's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded events to an io.Writer.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs events through a slog.Logger.
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a SlogSink. A nil logger uses slog.Default.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

const (
	auditEventHydrated        = "session.hydrated"
	auditEventLogin           = "session.login"
	auditEventLogout          = "session.logout"
	auditEventRefresh         = "session.refresh"
	auditEventExpired         = "session.expired"
	auditEventProfileUpdated  = "profile.updated"
	auditEventRegistered      = "account.registered"
	auditEventEmailVerified   = "email.verified"
	auditEventPasswordForgot  = "password.reset_requested"
	auditEventPasswordReset   = "password.reset"
	auditEventPasswordChanged = "password.changed"
)

// AuditErrorCode is the stable error code carried by AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrNotAuthenticated   AuditErrorCode = "not_authenticated"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrNetwork            AuditErrorCode = "network"
	auditErrTokenRejected      AuditErrorCode = "token_rejected"
	auditErrBackend            AuditErrorCode = "backend_error"
	auditErrStorage            AuditErrorCode = "storage"
	auditErrSuperseded         AuditErrorCode = "superseded"
	auditErrInitializing       AuditErrorCode = "initializing"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (m *Manager) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	phase Phase,
	generation uint64,
	err error,
	metadataBuilder func() map[string]string,
) {
	if m == nil || m.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	requestID, _ := RequestIDFromContext(ctx)

	event := AuditEvent{
		Timestamp:  m.clock.Now().UTC(),
		EventType:  eventType,
		UserID:     userID,
		RequestID:  requestID,
		Phase:      phase.String(),
		Generation: generation,
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	m.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrSuperseded):
		return auditErrSuperseded
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrAuthentication):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrNotAuthenticated):
		return auditErrNotAuthenticated
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrNetwork):
		return auditErrNetwork
	case errors.Is(err, ErrTokenRejected):
		return auditErrTokenRejected
	case errors.Is(err, ErrBackend):
		return auditErrBackend
	case errors.Is(err, ErrStorage):
		return auditErrStorage
	case errors.Is(err, ErrSessionInitializing):
		return auditErrInitializing
	default:
		return auditErrInternal
	}
}

// AuditDropped returns the number of audit events dropped because the
// dispatcher buffer was full.
func (m *Manager) AuditDropped() uint64 {
	if m == nil || m.audit == nil {
		return 0
	}
	return m.audit.Dropped()
}
