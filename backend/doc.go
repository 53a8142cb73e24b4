// Package backend is the HTTP implementation of goAuthClient.Backend.
//
// Requests and responses are JSON. Every request carries an X-Request-ID
// header: the ID attached with goAuthClient.WithRequestID, or a new UUID.
// Failures are returned as *goAuthClient.Error:
//
//	400, 422                         ErrValidation
//	401, 403 on credential endpoints ErrAuthentication
//	401 on bearer endpoints          ErrTokenRejected
//	other non-2xx                    ErrBackend
//	transport failure, timeout,
//	undecodable body                 ErrNetwork
//
// The backend's {"detail": ...} message is carried verbatim. A list of
// validation items ({"msg": ...}) is joined with "; ".
//
// The client never retries.
package backend
