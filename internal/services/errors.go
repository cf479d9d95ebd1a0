package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrAcquisition   = errors.New("acquisition error")
	ErrTranscription = errors.New("transcription error")
	ErrAnalysis      = errors.New("analysis error")
	ErrCache         = errors.New("cache error")
	ErrPersistence   = errors.New("persistence error")
)

var markers = []error{
	ErrConfiguration,
	ErrValidation,
	ErrAcquisition,
	ErrTranscription,
	ErrAnalysis,
	ErrCache,
	ErrPersistence,
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrValidation
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify returns the first taxonomy marker found in err's chain, or nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			return marker
		}
	}
	return nil
}

// Fatal reports whether err should stop the process rather than a single item.
func Fatal(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// Kind returns a short label for the error's marker, suitable for tables and
// history rows.
func Kind(err error) string {
	switch Classify(err) {
	case ErrConfiguration:
		return "configuration"
	case ErrValidation:
		return "validation"
	case ErrAcquisition:
		return "acquisition"
	case ErrTranscription:
		return "transcription"
	case ErrAnalysis:
		return "analysis"
	case ErrCache:
		return "cache"
	case ErrPersistence:
		return "persistence"
	default:
		if err == nil {
			return ""
		}
		return "unknown"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
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
