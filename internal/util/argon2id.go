package util

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

type Argon2idParams struct {
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
	KeyLen      uint32
}

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

const passwordHashPrefix = "$argon2id$v=19$"

// HashPassword returns a PHC-style encoded argon2id hash of password.
func HashPassword(password string, params Argon2idParams) (string, error) {
	salt, err := RandomBytes(16)
	if err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen)
	enc := base64.RawStdEncoding
	return fmt.Sprintf("%sm=%d,t=%d,p=%d$%s$%s", passwordHashPrefix,
		params.MemoryKiB, params.Time, params.Parallelism,
		enc.EncodeToString(salt), enc.EncodeToString(key)), nil
}

// VerifyPassword compares password against an encoded hash from HashPassword
// in constant time.
func VerifyPassword(password, encoded string) (bool, error) {
	if !strings.HasPrefix(encoded, passwordHashPrefix) {
		return false, fmt.Errorf("unsupported password hash format")
	}
	parts := strings.Split(strings.TrimPrefix(encoded, passwordHashPrefix), "$")
	if len(parts) != 3 {
		return false, fmt.Errorf("malformed password hash")
	}
	var p Argon2idParams
	if _, err := fmt.Sscanf(parts[0], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Time, &p.Parallelism); err != nil {
		return false, fmt.Errorf("parsing password hash params: %w", err)
	}
	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("decoding salt: %w", err)
	}
	expected, err := enc.DecodeString(parts[2])
	if err != nil {
		return false, fmt.Errorf("decoding key: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}
