package internaldefs

import (
	goAuthClient "github.com/MrEthical07/goAuthClient"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   goAuthClient.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   goAuthClient.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const (
	AuditDroppedName = "goauth_client_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: goAuthClient.MetricHydrateSuccess, Name: "goauth_client_hydrate_success_total", Help: "Startups that resumed a persisted session."},
	{ID: goAuthClient.MetricHydrateFailure, Name: "goauth_client_hydrate_failure_total", Help: "Startups whose persisted session was rejected."},
	{ID: goAuthClient.MetricLoginSuccess, Name: "goauth_client_login_success_total", Help: "Successful logins."},
	{ID: goAuthClient.MetricLoginFailure, Name: "goauth_client_login_failure_total", Help: "Failed logins."},
	{ID: goAuthClient.MetricLogout, Name: "goauth_client_logout_total", Help: "Logouts."},
	{ID: goAuthClient.MetricLogoutNotifyFailure, Name: "goauth_client_logout_notify_failure_total", Help: "Logout notifications the backend did not acknowledge."},
	{ID: goAuthClient.MetricRefreshSuccess, Name: "goauth_client_refresh_success_total", Help: "Successful token refreshes."},
	{ID: goAuthClient.MetricRefreshFailure, Name: "goauth_client_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: goAuthClient.MetricRefreshCoalesced, Name: "goauth_client_refresh_coalesced_total", Help: "Refresh triggers that joined an in-flight refresh."},
	{ID: goAuthClient.MetricRefreshDiscarded, Name: "goauth_client_refresh_discarded_total", Help: "Refresh results discarded because the session was reset."},
	{ID: goAuthClient.MetricSessionExpired, Name: "goauth_client_session_expired_total", Help: "Sessions ended by a failed refresh."},
	{ID: goAuthClient.MetricTokenRejected, Name: "goauth_client_token_rejected_total", Help: "Access tokens rejected by the backend."},
	{ID: goAuthClient.MetricProfileUpdateSuccess, Name: "goauth_client_profile_update_success_total", Help: "Successful profile updates."},
	{ID: goAuthClient.MetricProfileUpdateFailure, Name: "goauth_client_profile_update_failure_total", Help: "Failed profile updates."},
	{ID: goAuthClient.MetricRegisterSuccess, Name: "goauth_client_register_success_total", Help: "Successful registrations."},
	{ID: goAuthClient.MetricRegisterFailure, Name: "goauth_client_register_failure_total", Help: "Failed registrations."},
	{ID: goAuthClient.MetricEmailVerificationSuccess, Name: "goauth_client_email_verification_success_total", Help: "Successful email verifications."},
	{ID: goAuthClient.MetricEmailVerificationFailure, Name: "goauth_client_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: goAuthClient.MetricPasswordResetRequest, Name: "goauth_client_password_reset_request_total", Help: "Password reset requests."},
	{ID: goAuthClient.MetricPasswordResetSuccess, Name: "goauth_client_password_reset_success_total", Help: "Successful password resets."},
	{ID: goAuthClient.MetricPasswordResetFailure, Name: "goauth_client_password_reset_failure_total", Help: "Failed password resets and reset requests."},
	{ID: goAuthClient.MetricPasswordChangeSuccess, Name: "goauth_client_password_change_success_total", Help: "Successful password changes."},
	{ID: goAuthClient.MetricPasswordChangeFailure, Name: "goauth_client_password_change_failure_total", Help: "Failed password changes."},
	{ID: goAuthClient.MetricStorageFailure, Name: "goauth_client_storage_failure_total", Help: "Token storage reads or writes that failed."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goAuthClient.MetricBackendLatency, Name: "goauth_client_backend_latency_seconds", Help: "Backend call latency."},
}

// HistogramBounds are the Prometheus "le" labels of the latency buckets.
var HistogramBounds = [goAuthClient.HistBucketCount]string{
	"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf",
}

// HistogramBoundSuffix are the bounds as instrument-name suffixes.
var HistogramBoundSuffix = [goAuthClient.HistBucketCount]string{
	"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf",
}

// Buckets is one histogram's per-bucket counts.
type Buckets = [goAuthClient.HistBucketCount]uint64

// CumulativeBuckets converts raw per-bucket counts into the cumulative form
// both exporters publish. Missing buckets count as zero.
func CumulativeBuckets(raw []uint64) Buckets {
	var out Buckets
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
