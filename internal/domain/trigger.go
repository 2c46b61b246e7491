package domain

import (
	"fmt"
	"strings"
)

// TriggerType discriminates the trigger kinds an automation revision can be
// registered against. versionCreation is the only kind implemented today;
// consumers must reject unknown kinds explicitly rather than skip them, so
// adding a second kind is a compile-visible multi-site change.
type TriggerType string

const VersionCreationTriggerType TriggerType = "versionCreation"

// KnownTriggerType reports whether the given type is implemented.
func KnownTriggerType(t TriggerType) bool {
	return t == VersionCreationTriggerType
}

// TriggerDefinition is the persisted binding of a revision to a watched
// resource and event kind.
type TriggerDefinition struct {
	AutomationRevisionID string
	TriggeringID         string
	TriggerType          TriggerType
}

// Manifest describes one concrete triggering occurrence. It is ephemeral and
// never persisted. The interface is a closed union over trigger kinds.
type Manifest interface {
	ManifestTriggerType() TriggerType
}

// VersionCreatedManifest is the versionCreation variant of Manifest.
type VersionCreatedManifest struct {
	ModelID   string
	VersionID string
}

func (VersionCreatedManifest) ManifestTriggerType() TriggerType {
	return VersionCreationTriggerType
}

func (m VersionCreatedManifest) Validate() error {
	if strings.TrimSpace(m.ModelID) == "" {
		return fmt.Errorf("%w: manifest model id is required", ErrInvalidTrigger)
	}
	if strings.TrimSpace(m.VersionID) == "" {
		return fmt.Errorf("%w: manifest version id is required", ErrInvalidTrigger)
	}
	return nil
}

// AsVersionCreatedManifest narrows a manifest to the versionCreation variant.
func AsVersionCreatedManifest(m Manifest) (VersionCreatedManifest, bool) {
	v, ok := m.(VersionCreatedManifest)
	return v, ok
}
