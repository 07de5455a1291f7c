package datasource

import (
	"errors"
	"fmt"
)

// ErrClientIDNotFound means the storage entity holding the application id is
// missing or empty.
var ErrClientIDNotFound = errors.New("client id not found")

// ConfigurationError is the one failure GetData returns. It indicates the
// tenant or host is misconfigured and no user action can recover it.
type ConfigurationError struct {
	Entity string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: client id lookup for storage entity %q failed: %v", e.Entity, e.Err)
	}
	return fmt.Sprintf("configuration error: storage entity %q holds no client id", e.Entity)
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrClientIDNotFound, e.Err}
	}
	return []error{ErrClientIDNotFound}
}
