package resolver

import (
	"errors"
	"strings"
)

// Op names the stage of resolution that failed.
type Op string

const (
	OpReadConfig Op = "read system config"
	OpConstruct  Op = "construct engine"
	OpLookup     Op = "lookup"
)

var (
	// ErrConfigRead matches errors from reading the system configuration.
	ErrConfigRead = errors.New("resolver: config read failed")
	// ErrConstruction matches errors from building the engine, including a
	// caller giving up while waiting for another caller's construction.
	ErrConstruction = errors.New("resolver: engine construction failed")
	// ErrLookup matches errors from a single lookup.
	ErrLookup = errors.New("resolver: lookup failed")

	errNilEngine = errors.New("constructor returned a nil engine")
)

// Error is the only error type returned by this package. It keeps the
// underlying cause available through errors.Is and errors.As.
type Error struct {
	Op   Op
	Host string // empty unless Op is OpLookup
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("resolver: ")
	b.WriteString(string(e.Op))
	if e.Host != "" {
		b.WriteString(" ")
		b.WriteString(e.Host)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's Op.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfigRead:
		return e.Op == OpReadConfig
	case ErrConstruction:
		return e.Op == OpConstruct
	case ErrLookup:
		return e.Op == OpLookup
	}
	return false
}
