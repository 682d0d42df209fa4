package controller

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure by which boundary produced it.
type ErrorKind int

const (
	// ConfigError: invalid settings or missing credentials.
	ConfigError ErrorKind = iota
	// DeviceError: the microphone could not be opened or started.
	DeviceError
	// RegistrationError: the hotkey combination could not be claimed.
	RegistrationError
	// ServiceError: the transcription provider failed or misbehaved.
	ServiceError
	// InjectionError: synthetic keystrokes could not be delivered.
	InjectionError
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigError:
		return "config"
	case DeviceError:
		return "device"
	case RegistrationError:
		return "registration"
	case ServiceError:
		return "service"
	case InjectionError:
		return "injection"
	default:
		return "unknown"
	}
}

// Error pairs a failure with its kind so observers can decide how loudly to
// surface it.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from an error chain. The second return is false
// for errors that did not originate here.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
