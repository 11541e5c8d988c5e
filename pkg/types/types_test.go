package types_test

import (
	"testing"
	"time"

	"github.com/scrypster/recollect/pkg/types"
)

func TestParseModality(t *testing.T) {
	cases := map[string]types.Modality{
		"photo":  types.ModalityPhoto,
		"IMAGE":  types.ModalityPhoto,
		" video": types.ModalityVideo,
		"voice":  types.ModalityAudio,
		"audio":  types.ModalityAudio,
	}
	for in, want := range cases {
		got, ok := types.ParseModality(in)
		if !ok || got != want {
			t.Errorf("ParseModality(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}

	if _, ok := types.ParseModality("document"); ok {
		t.Error("Expected document to be rejected")
	}
}

func TestValidateSource(t *testing.T) {
	r := types.MediaRecord{}
	if err := r.ValidateSource(); err == nil {
		t.Error("Expected error for record with no content source")
	}

	r.ContentURL = "https://example.com/a.jpg"
	if err := r.ValidateSource(); err != nil {
		t.Errorf("Expected URL-only record to be valid, got %v", err)
	}

	r.Content = []byte{0xff}
	if err := r.ValidateSource(); err == nil {
		t.Error("Expected error for record with both content sources")
	}

	r.ContentURL = ""
	if err := r.ValidateSource(); err != nil {
		t.Errorf("Expected bytes-only record to be valid, got %v", err)
	}
}

func TestNormalizeLabel(t *testing.T) {
	if got := types.NormalizeLabel("  Red Keys "); got != "red keys" {
		t.Errorf("NormalizeLabel = %q, want %q", got, "red keys")
	}
}

func TestNewTimeSpan(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	span := types.NewTimeSpan(start, 90*time.Second)
	if !span.End.Equal(start.Add(90 * time.Second)) {
		t.Errorf("unexpected span end %v", span.End)
	}
	if photo := types.NewTimeSpan(start, 0); !photo.Start.Equal(photo.End) {
		t.Error("Expected zero-duration span to have equal bounds")
	}
}

func TestParseConfidenceLabel(t *testing.T) {
	if l, ok := types.ParseConfidenceLabel(" high "); !ok || l != types.ConfidenceHigh {
		t.Errorf("got %q, %v", l, ok)
	}
	if _, ok := types.ParseConfidenceLabel("certain"); ok {
		t.Error("Expected unknown label to be rejected")
	}
}

func TestStatusIsTerminal(t *testing.T) {
	if types.StatusPending.IsTerminal() || types.StatusProcessing.IsTerminal() {
		t.Error("pending/processing must not be terminal")
	}
	if !types.StatusCompleted.IsTerminal() || !types.StatusFailed.IsTerminal() {
		t.Error("completed/failed must be terminal")
	}
}
