package dispatch

import "errors"

var (
	ErrNilSession = errors.New("dispatch: nil transport session")
)
