// Package types defines the core data structures for the recollect media memory system.
// These types represent captured media records, object sightings, vector records
// and the ranked search results built from them.
package types

import "strings"

// Modality is the kind of captured media.
type Modality string

// ProcessingStatus represents the analysis status of a media record.
type ProcessingStatus string

// ConfidenceLabel is the user-facing confidence attached to an answer.
type ConfidenceLabel string

// ConfirmationType records how an object sighting was established.
type ConfirmationType string

// Modality constants
const (
	ModalityPhoto Modality = "photo"
	ModalityVideo Modality = "video"
	ModalityAudio Modality = "audio"
)

// Processing status constants
const (
	// StatusPending indicates the record is stored but not yet analyzed
	StatusPending ProcessingStatus = "pending"

	// StatusProcessing indicates analysis is in progress
	StatusProcessing ProcessingStatus = "processing"

	// StatusCompleted indicates analysis produced a description
	StatusCompleted ProcessingStatus = "completed"

	// StatusFailed indicates analysis produced nothing usable
	StatusFailed ProcessingStatus = "failed"
)

// Confidence label constants
const (
	ConfidenceHigh   ConfidenceLabel = "High"
	ConfidenceMedium ConfidenceLabel = "Medium"
	ConfidenceLow    ConfidenceLabel = "Low"
	ConfidenceNone   ConfidenceLabel = "None"
)

// Confirmation type constants
const (
	ConfirmedVisual   ConfirmationType = "visual"
	ConfirmedAudio    ConfirmationType = "audio"
	ConfirmedInferred ConfirmationType = "inferred"
)

// ValidModalities contains all accepted modality values
var ValidModalities = []Modality{ModalityPhoto, ModalityVideo, ModalityAudio}

// IsValidModality checks if the given value is a known modality.
func IsValidModality(m Modality) bool {
	for _, v := range ValidModalities {
		if m == v {
			return true
		}
	}
	return false
}

// ParseModality maps loose client values ("image", "IMAGE", "voice") onto a Modality.
// Unknown values return false.
func ParseModality(s string) (Modality, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "photo", "image", "picture":
		return ModalityPhoto, true
	case "video":
		return ModalityVideo, true
	case "audio", "voice", "recording":
		return ModalityAudio, true
	}
	return "", false
}

// IsTerminal reports whether analysis has finished for this status.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseConfidenceLabel matches a label case-insensitively. Unknown values return false.
func ParseConfidenceLabel(s string) (ConfidenceLabel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ConfidenceHigh, true
	case "medium":
		return ConfidenceMedium, true
	case "low":
		return ConfidenceLow, true
	case "none":
		return ConfidenceNone, true
	}
	return "", false
}
