package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

const maxAuthBodySize = 16 << 10

var (
	errAccountExists   = errors.New("username already registered")
	errUnknownAccount  = errors.New("unknown account")
	errInvalidPassword = errors.New("invalid password")
	errTokenNotFound   = errors.New("token not found")
	errTokenExpired    = errors.New("token expired")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeInternalError logs err and sends a generic 500 so internal details
// never reach the client.
func writeInternalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

// decodeJSON reads a size-limited JSON body into T. On failure it writes a
// 400 and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return v, false
	}
	return v, true
}

func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errAccountExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errTokenNotFound), errors.Is(err, errTokenExpired):
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, errUnknownAccount), errors.Is(err, errInvalidPassword):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		writeInternalError(w, "internal error", err)
	}
}
