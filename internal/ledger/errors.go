package ledger

import "errors"

var (
	// ErrMalformedInput marks a statement file that cannot be ingested at
	// all: undecodable, not CSV, or too short to contain data rows. The
	// upload is rejected as a unit, nothing is inserted.
	ErrMalformedInput = errors.New("malformed statement file")

	// ErrRecordNotFound is returned by single-record store operations when
	// the id does not exist.
	ErrRecordNotFound = errors.New("record not found")
)
