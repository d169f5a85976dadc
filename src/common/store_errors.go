package common

import (
	"errors"
	"fmt"
)

// StoreErrType enumerates the failures of a log lookup.
type StoreErrType uint32

const (
	// KeyNotFound is returned when no record has the requested sequence
	// number yet.
	KeyNotFound StoreErrType = iota
	// SkippedIndex is returned when loading a log whose sequence numbers are
	// not dense.
	SkippedIndex
)

// StoreErr is the error type of the stores. DataType names the kind of
// record, eg. "Vote" or "FraudRecord", and Key the sequence number or database
// key that was looked up.
type StoreErr struct {
	DataType string
	Type     StoreErrType
	Key      string
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		DataType: dataType,
		Type:     errType,
		Key:      key,
	}
}

// Error implements the error interface.
func (e StoreErr) Error() string {
	m := ""
	switch e.Type {
	case KeyNotFound:
		m = "not found"
	case SkippedIndex:
		m = "skipped index"
	}

	return fmt.Sprintf("%s %s: %s", e.DataType, e.Key, m)
}

// IsStore reports whether err, or an error it wraps, is a StoreErr of type t.
func IsStore(err error, t StoreErrType) bool {
	var storeErr StoreErr
	return errors.As(err, &storeErr) && storeErr.Type == t
}
