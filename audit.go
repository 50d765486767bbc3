package teamgate

import (
	"io"

	"github.com/avrelium/teamgate/internal/audit"
)

// Audit types are aliased from internal/audit so callers wire sinks without
// importing an internal path.
type (
	AuditEvent = audit.Event
	AuditSink  = audit.Sink

	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
)

// NewChannelSink creates a sink that buffers events on a channel.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a sink that writes one JSON object per line.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// Audit event types emitted by the engine.
const (
	auditEventRequestStarted   = "request_started"
	auditEventRequestCompleted = "request_completed"

	auditEventLogin        = "login"
	auditEventLogout       = "logout"
	auditEventOtpSent      = "otp_sent"
	auditEventOtpVerified  = "otp_verified"
	auditEventOtpResent    = "otp_resent"
	auditEventMfaEnrolled  = "mfa_enrolled"
	auditEventRequestFault = "request_fault"
)
