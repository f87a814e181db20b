package exchange

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidState = errors.New("status does not allow this action")
)
