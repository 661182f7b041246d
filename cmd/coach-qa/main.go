package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit codes.
const (
	ExitPassed = 0
	ExitFailed = 1
	ExitConfig = 2
)

// errScenariosFailed is returned after the reports are written.
var errScenariosFailed = errors.New("one or more scenarios failed")

// exitError carries the process exit code for err.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configError(format string, a ...any) error {
	return &exitError{code: ExitConfig, err: fmt.Errorf(format, a...)}
}

func exitCode(err error) int {
	if err == nil {
		return ExitPassed
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// flag and usage errors
	return ExitConfig
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr, os.Environ()))
}

func execute(args []string, stdout, stderr io.Writer, environ []string) int {
	root := newRootCmd(stdout, stderr, environ)
	root.SetArgs(args)
	err := root.Execute()
	if err != nil && !errors.Is(err, errScenariosFailed) {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return exitCode(err)
}
