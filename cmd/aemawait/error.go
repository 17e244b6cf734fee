package main

type configError struct {
	error
}

func (e *configError) Unwrap() error { return e.error }

func newConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &configError{error: err}
}
