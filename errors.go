package tmppostgres

import (
	"errors"
	"fmt"
	"strings"
)

// Start failure kinds. Use errors.Is against a returned error to tell them
// apart; errors.As with *StartError gives the details.
var (
	ErrInitFailed        = errors.New("initdb failed")
	ErrCreateDBFailed    = errors.New("createdb failed")
	ErrServerStartFailed = errors.New("postgres exited before accepting connections")
	ErrServerDisappeared = errors.New("postgres process disappeared")
	ErrConfigIncomplete  = errors.New("configuration incomplete")
	ErrResources         = errors.New("allocating resources failed")
	ErrStartCanceled     = errors.New("start canceled before postgres was ready")
)

// Plan names used by ErrConfigIncomplete.
const (
	PlanInit     = "init"
	PlanCreateDB = "create-db"
	PlanServer   = "server"
	PlanClient   = "client"
)

// StartError is the single error type returned by Start and Restart.
type StartError struct {
	// Kind is one of the Err* sentinels above.
	Kind error

	// ExitCode is the process exit code for InitFailed, CreateDBFailed and
	// ServerStartFailed. -1 means the process was killed by a signal or
	// never ran.
	ExitCode int

	// Args is the argument list of the failed create-db run.
	Args []string

	// Plan and Field name the incomplete plan for ConfigIncomplete.
	Plan  string
	Field string

	// Err is the underlying cause, if any.
	Err error
}

func (e *StartError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	switch {
	case errors.Is(e.Kind, ErrConfigIncomplete):
		fmt.Fprintf(&b, ": %s plan is missing %s", e.Plan, e.Field)
	case errors.Is(e.Kind, ErrCreateDBFailed):
		fmt.Fprintf(&b, " (exit code %d, args %q)", e.ExitCode, e.Args)
	case errors.Is(e.Kind, ErrInitFailed), errors.Is(e.Kind, ErrServerStartFailed):
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches the Kind sentinel.
func (e *StartError) Is(target error) bool {
	return e.Kind == target
}

func (e *StartError) Unwrap() error {
	return e.Err
}

func incomplete(plan, field string) *StartError {
	return &StartError{Kind: ErrConfigIncomplete, Plan: plan, Field: field}
}
