package listquery

import (
	"errors"
	"fmt"
)

// RequestError reports a malformed list request parameter. Callers surface it
// as a client error; it is always produced before any store call.
type RequestError struct {
	Param   string
	Message string
}

func (e *RequestError) Error() string {
	if e.Param == "" {
		return "listquery: " + e.Message
	}
	return fmt.Sprintf("listquery: %s: %s", e.Param, e.Message)
}

// IsRequestError reports whether err carries a *RequestError.
func IsRequestError(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr)
}

func requestErrorf(param, format string, args ...interface{}) *RequestError {
	return &RequestError{Param: param, Message: fmt.Sprintf(format, args...)}
}
