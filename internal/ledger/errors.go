package ledger

import "errors"

var (
	ErrNotFound         = errors.New("document not found")
	ErrAlreadyExists    = errors.New("document already exists")
	ErrConflict         = errors.New("document modified concurrently")
	ErrQueryUnsupported = errors.New("selector queries not supported by this store")
)
