package event

import (
	"errors"
	"net/http"
)

var ErrNoRunner = errors.New("no script runner configured")

// ScriptError is the hard failure raised when an event script reports an
// error or exception. It aborts the enclosing request.
type ScriptError struct {
	Event   string
	Message string
}

func (e *ScriptError) Error() string {
	return e.Message
}

// StatusCode is the HTTP status the failure is reported with.
func (e *ScriptError) StatusCode() int {
	return http.StatusInternalServerError
}
