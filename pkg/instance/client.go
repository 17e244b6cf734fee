package instance

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client queries the remote state of a single instance. Calls are synchronous;
// implementations must honor context cancellation.
type Client interface {
	BundleState(ctx context.Context) (*BundleState, error)
	ComponentState(ctx context.Context) (*ComponentState, error)
	EventState(ctx context.Context) (*EventState, error)
	InstallerState(ctx context.Context) (*InstallerState, error)
	StartBundle(ctx context.Context, symbolicName string) error

	// ControlPort inspects the control port marker of a local instance.
	// Remote instances always report a marker that does not exist.
	ControlPort() (ControlPort, error)
}

// ClientFactory creates a client for an instance tuned with the given options.
type ClientFactory func(inst *Instance, opts ...Option) (Client, error)

// fatalError marks an error that no amount of polling can recover from.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal wraps err so that IsFatal reports true for it and anything wrapping it.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// StatusError is returned for unexpected HTTP response codes.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.Path)
}

const (
	// DefaultTimeout is the connection timeout of clients used by checks.
	DefaultTimeout = time.Second
)
