// Package storage provides the credential persistence layer used by the
// session client. Backends live in the memory, bbolt, redis and postgres
// subpackages; sealed wraps any backend with encryption at rest.
package storage

// Well-known credential names.
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
)

// Tx is the write surface available inside Store.Batch.
type Tx interface {
	Set(name, value string) error
	Clear(name string) error
}

// Store is a durable name/value store for session secrets.
//
// Get reports a missing name as ok == false with a nil error. Set must be
// durable before it returns. Clear is idempotent. Batch applies every write
// made by fn atomically, or none of them if fn returns an error.
type Store interface {
	Get(name string) (value string, ok bool, err error)
	Set(name, value string) error
	Clear(name string) error
	Batch(fn func(tx Tx) error) error
}
