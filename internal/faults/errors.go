package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrAdmission     = errors.New("admission error")
	ErrIntegration   = errors.New("integration error")
	ErrInternal      = errors.New("internal error")
	// ErrRejected marks a remote mutating call that did not report success.
	ErrRejected = errors.New("remote rejected request")
)

// Class is the dispatcher-facing severity of a stage result.
type Class int

const (
	ClassSuccess Class = iota
	ClassItemFailure
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassItemFailure:
		return "item_failure"
	case ClassFatal:
		return "fatal"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrInternal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to the dispatcher class. Configuration and admission
// failures abort the run; everything else is isolated to the current mount.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassSuccess
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrAdmission):
		return ClassFatal
	default:
		return ClassItemFailure
	}
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	return Classify(err) == ClassFatal
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "unspecified failure"
	}
	return strings.Join(parts, ": ")
}
