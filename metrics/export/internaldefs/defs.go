package internaldefs

import (
	teamgate "github.com/avrelium/teamgate"
)

// CounterDef binds one engine counter to its exported metric name.
type CounterDef struct {
	ID   teamgate.MetricID
	Name string
	Help string
}

// HistogramDef binds one engine histogram to its exported metric name.
type HistogramDef struct {
	ID   teamgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: teamgate.MetricLoginSuccess, Name: "teamgate_login_success_total", Help: "Sign-ins that issued a session directly."},
	{ID: teamgate.MetricLoginFailure, Name: "teamgate_login_failure_total", Help: "Sign-ins rejected for a bad password."},
	{ID: teamgate.MetricLoginNotFound, Name: "teamgate_login_not_found_total", Help: "Sign-ins against unknown identifiers."},
	{ID: teamgate.MetricEmailConfirmationRequired, Name: "teamgate_email_confirmation_required_total", Help: "Sign-ins halted on an unconfirmed email address."},
	{ID: teamgate.MetricMfaRequired, Name: "teamgate_mfa_required_total", Help: "Sign-ins that entered the MFA step."},
	{ID: teamgate.MetricOtpSent, Name: "teamgate_otp_sent_total", Help: "One-time codes dispatched on the requested channel."},
	{ID: teamgate.MetricOtpFallback, Name: "teamgate_otp_fallback_total", Help: "One-time code deliveries rerouted to the email channel."},
	{ID: teamgate.MetricOtpVerifySuccess, Name: "teamgate_otp_verify_success_total", Help: "Accepted one-time codes."},
	{ID: teamgate.MetricOtpVerifyFailure, Name: "teamgate_otp_verify_failure_total", Help: "Rejected one-time codes."},
	{ID: teamgate.MetricSessionCreated, Name: "teamgate_session_created_total", Help: "Issued session credentials."},
	{ID: teamgate.MetricSessionRevoked, Name: "teamgate_session_revoked_total", Help: "Sign-outs and session invalidations."},
	{ID: teamgate.MetricRequestValidationFailed, Name: "teamgate_request_validation_failed_total", Help: "Requests short-circuited by validation."},
	{ID: teamgate.MetricRequestCommitted, Name: "teamgate_request_committed_total", Help: "Requests whose transaction committed."},
	{ID: teamgate.MetricRequestRolledBack, Name: "teamgate_request_rolled_back_total", Help: "Requests whose transaction rolled back."},
}

// HistogramDefs lists every exported histogram in a stable order.
var HistogramDefs = []HistogramDef{
	{ID: teamgate.MetricDispatchLatency, Name: "teamgate_dispatch_latency_seconds", Help: "Request dispatch latency histogram."},
}

// HistogramBounds holds the upper bucket bounds in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix holds the bound spellings legal in OTel instrument
// names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed bucket
// count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form the
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
