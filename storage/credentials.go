package storage

import "fmt"

// Credentials is the access/refresh token pair held for the session.
// Both values are opaque.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Complete reports whether both tokens are present.
func (c Credentials) Complete() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// LoadCredentials reads the pair from s. ok is true only when both tokens
// are present; a half pair is reported as absent with partial == true.
func LoadCredentials(s Store) (creds Credentials, ok bool, partial bool, err error) {
	access, hasAccess, err := s.Get(AccessTokenKey)
	if err != nil {
		return Credentials{}, false, false, wrap("get", AccessTokenKey, err)
	}
	refresh, hasRefresh, err := s.Get(RefreshTokenKey)
	if err != nil {
		return Credentials{}, false, false, wrap("get", RefreshTokenKey, err)
	}
	if hasAccess && hasRefresh {
		return Credentials{AccessToken: access, RefreshToken: refresh}, true, false, nil
	}
	return Credentials{}, false, hasAccess || hasRefresh, nil
}

// SaveCredentials writes the pair in one batch. An empty RefreshToken keeps
// the stored refresh token unchanged.
func SaveCredentials(s Store, creds Credentials) error {
	if creds.AccessToken == "" {
		return &StoreError{Op: "set", Name: AccessTokenKey, Err: fmt.Errorf("empty value")}
	}
	err := s.Batch(func(tx Tx) error {
		if err := tx.Set(AccessTokenKey, creds.AccessToken); err != nil {
			return err
		}
		if creds.RefreshToken == "" {
			return nil
		}
		return tx.Set(RefreshTokenKey, creds.RefreshToken)
	})
	return wrap("batch", "", err)
}

// PurgeCredentials clears both tokens in one batch.
func PurgeCredentials(s Store) error {
	err := s.Batch(func(tx Tx) error {
		if err := tx.Clear(AccessTokenKey); err != nil {
			return err
		}
		return tx.Clear(RefreshTokenKey)
	})
	return wrap("batch", "", err)
}
