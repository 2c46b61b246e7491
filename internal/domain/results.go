package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ResultsSchemaVersion is the only accepted results payload version.
const ResultsSchemaVersion = "1.0.0"

// ObjectResultLevel grades a single object result.
type ObjectResultLevel string

const (
	ObjectResultLevelInfo    ObjectResultLevel = "info"
	ObjectResultLevelWarning ObjectResultLevel = "warning"
	ObjectResultLevelError   ObjectResultLevel = "error"
)

// Results is the structured payload a function reports back with a terminal
// status.
type Results struct {
	Version string        `json:"version"`
	Values  ResultsValues `json:"values"`
}

type ResultsValues struct {
	ObjectResults map[string][]ObjectResult `json:"objectResults"`
	BlobIDs       []string                  `json:"blobIds,omitempty"`
}

type ObjectResult struct {
	Category        string            `json:"category"`
	Level           ObjectResultLevel `json:"level"`
	ObjectIDs       []string          `json:"objectIds"`
	Message         *string           `json:"message"`
	Metadata        map[string]any    `json:"metadata"`
	VisualOverrides map[string]any    `json:"visualoverrides"`
}

// ParseResults decodes and validates a reported results payload.
func ParseResults(raw json.RawMessage) (Results, error) {
	var results Results
	if err := json.Unmarshal(raw, &results); err != nil {
		return Results{}, fmt.Errorf("%w: %v", ErrInvalidResults, err)
	}
	if err := results.Validate(); err != nil {
		return Results{}, err
	}
	return results, nil
}

func (r Results) Validate() error {
	if r.Version != ResultsSchemaVersion {
		return fmt.Errorf("%w: unsupported schema version %q", ErrInvalidResults, r.Version)
	}
	if r.Values.ObjectResults == nil {
		return fmt.Errorf("%w: values.objectResults is required", ErrInvalidResults)
	}
	for objectID, entries := range r.Values.ObjectResults {
		if strings.TrimSpace(objectID) == "" {
			return fmt.Errorf("%w: object result key must not be empty", ErrInvalidResults)
		}
		for i, entry := range entries {
			if strings.TrimSpace(entry.Category) == "" {
				return fmt.Errorf("%w: objectResults[%s][%d].category is required", ErrInvalidResults, objectID, i)
			}
			switch entry.Level {
			case ObjectResultLevelInfo, ObjectResultLevelWarning, ObjectResultLevelError:
			default:
				return fmt.Errorf("%w: objectResults[%s][%d].level %q is not supported", ErrInvalidResults, objectID, i, entry.Level)
			}
			if len(entry.ObjectIDs) == 0 {
				return fmt.Errorf("%w: objectResults[%s][%d].objectIds must not be empty", ErrInvalidResults, objectID, i)
			}
		}
	}
	for i, blobID := range r.Values.BlobIDs {
		if strings.TrimSpace(blobID) == "" {
			return fmt.Errorf("%w: values.blobIds[%d] must not be empty", ErrInvalidResults, i)
		}
	}
	return nil
}

// ValidateContextView checks a viewer context reference. It must be an
// absolute path within the viewer, e.g. "/projects/x/models/y@z".
func ValidateContextView(view string) error {
	view = strings.TrimSpace(view)
	if view == "" {
		return fmt.Errorf("%w: context view must not be empty", ErrInvalidContextView)
	}
	if !strings.HasPrefix(view, "/") {
		return fmt.Errorf("%w: context view must be an absolute path", ErrInvalidContextView)
	}
	return nil
}
