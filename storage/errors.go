package storage

import "errors"

// ErrStore is matched by every *StoreError.
var ErrStore = errors.New("credential store failure")

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("credential store closed")

// StoreError indicates a credential storage failure.
type StoreError struct {
	Op   string // "get", "set", "clear", "batch"
	Name string
	Err  error
}

func (e *StoreError) Error() string {
	msg := e.Op + " credential"
	if e.Name != "" {
		msg += " " + e.Name
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStore}
	}
	return []error{ErrStore, e.Err}
}

func wrap(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Name: name, Err: err}
}
