package types

import (
	"strings"
	"time"
)

// ObjectSighting is the latest confirmed observation of a physical object.
// There is at most one live sighting per normalized label.
// Effective confidence decays with age and is never stored.
type ObjectSighting struct {
	Label            string           `json:"label"`
	SourceRecordID   string           `json:"source_record_id"`
	ConfirmedAt      time.Time        `json:"confirmed_at"`
	BaseConfidence   float64          `json:"base_confidence"`
	ConfirmationType ConfirmationType `json:"confirmation_type"`
}

// NormalizeLabel lower-cases and trims an object label.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
