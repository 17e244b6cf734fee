package main

import (
	"errors"
	"os"
)

func main() {
	root := newRoot()
	if _, err := root.Command().ExecuteC(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps command errors: 2 for configuration problems, 1 otherwise.
func exitCode(err error) int {
	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}
