// Package session implements the authenticated API session used by the
// storefront app.
//
// A Client attaches the current access token to every request as a bearer
// credential. When the backend answers 401 the client refreshes the token
// pair exactly once, no matter how many requests were rejected at the same
// time, and retries each rejected request once with the new token. If the
// refresh token itself is rejected the stored credentials are purged and the
// session becomes anonymous; callers see an *AuthExpiredError and are
// expected to route the user back to sign-in.
//
// All session state (current state, cached access token, in-flight refresh)
// lives in one record guarded by one mutex. Store writes happen only under
// that mutex, on login, logout and refresh completion. Transport calls never
// hold it.
package session
