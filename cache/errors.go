package cache

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Error codes carried by the errors of this package.
const (
	CodeInvalidKey    = "E_INVALID_KEY"
	CodeInvalidExpire = "E_INVALID_EXPIRE"
	CodeInvalidValue  = "E_INVALID_VALUE"
	CodeInvalidDriver = "E_INVALID_CACHE_DRIVER"
)

var (
	// ErrInvalidArgument is matched by every precondition violation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownDriver is matched when a driver name is not registered.
	ErrUnknownDriver = errors.New("unknown cache driver")
	// ErrBackendUnavailable is matched by failures talking to a backend.
	ErrBackendUnavailable = errors.New("cache backend unavailable")
)

// ArgumentError reports an invalid key, expiration or value.
type ArgumentError struct {
	Code  string
	Param string
	Value any
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%v is not a valid %s", e.Value, e.Param)
}

func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// ErrorCode returns the error code.
func (e *ArgumentError) ErrorCode() string {
	return e.Code
}

// DriverError reports a driver name that neither a built-in nor an
// extension resolves.
type DriverError struct {
	Name string
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s is not a valid cache provider", e.Name)
}

func (e *DriverError) Is(target error) bool {
	return target == ErrUnknownDriver
}

// ErrorCode returns the error code.
func (e *DriverError) ErrorCode() string {
	return CodeInvalidDriver
}

// BackendError wraps a failure talking to a backend.
type BackendError struct {
	Driver string
	Op     string
	Key    string
	Err    error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("cache: %s %s %q: %v", e.Driver, e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func (e *BackendError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

// Code returns the error code carried by err, or an empty string.
func Code(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ""
}

func invalidKey(key string) error {
	return &ArgumentError{Code: CodeInvalidKey, Param: "key", Value: key}
}

func invalidExpire(expires time.Duration) error {
	return &ArgumentError{Code: CodeInvalidExpire, Param: "expire", Value: expires}
}

func invalidValue(value any) error {
	return &ArgumentError{Code: CodeInvalidValue, Param: "value", Value: value}
}

func unavailable(driver, op, key string, err error) error {
	return &BackendError{Driver: driver, Op: op, Key: key, Err: err}
}

func validateKey(key string) error {
	if key == "" {
		return invalidKey(key)
	}
	return nil
}

func validateRemember(key string, expires time.Duration, producer Producer) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if expires <= 0 {
		return invalidExpire(expires)
	}
	if producer.IsAbsent() {
		return invalidValue(nil)
	}
	return nil
}

func validateForever(key string, producer Producer) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if producer.IsAbsent() {
		return invalidValue(nil)
	}
	return nil
}
