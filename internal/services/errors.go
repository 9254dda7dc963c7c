package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProtocol   = errors.New("protocol violation")
	ErrConversion = errors.New("conversion failure")
	ErrResource   = errors.New("resource failure")
)

// FailureKind classifies an error for response mapping and the journal.
type FailureKind string

const (
	KindProtocol   FailureKind = "protocol"
	KindConversion FailureKind = "conversion"
	KindResource   FailureKind = "resource"
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrConversion
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to its failure kind. Untagged errors count as
// conversion failures since the converter is the only opaque collaborator;
// deadline expiry is a resource failure.
func Classify(err error) FailureKind {
	switch {
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	case errors.Is(err, ErrResource), errors.Is(err, context.DeadlineExceeded):
		return KindResource
	default:
		return KindConversion
	}
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
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
