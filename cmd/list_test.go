package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/dictaphone/internal/recording"
)

func sampleRecordings() []recording.Recording {
	created := time.Date(2024, 2, 29, 18, 45, 0, 0, time.Local)
	return []recording.Recording{
		{ID: "0f8fad5b-d9cb-469f-a165-70867728950e", Name: "Standup", FilePath: "/rec/Recording_20240229_184500.000.wav", Duration: 95 * time.Second, CreatedAt: created},
		{ID: "7c9e6679-7425-40de-944b-e07fc1f90ae7", Name: "found", FilePath: "/rec/found.flac", Duration: recording.UnknownDuration, CreatedAt: created.Add(-time.Hour)},
	}
}

func TestRenderRecordings(t *testing.T) {
	out := renderRecordings(sampleRecordings(), false)

	for _, want := range []string{"Standup", "01:35", "29.02.2024 18:45", "0f8fad5b", "Recording_20240229_184500.000.wav", "--:--", "found.flac"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in table:\n%s", want, out)
		}
	}
	if strings.Contains(out, "d9cb-469f") {
		t.Errorf("Expected shortened ids in table:\n%s", out)
	}
}

func TestToListEntries(t *testing.T) {
	entries := toListEntries(sampleRecordings())
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Position != 1 || entries[0].Duration != "01:35" || entries[1].Duration != "--:--" {
		t.Errorf("Unexpected entries: %+v", entries)
	}
}

func TestConfirm(t *testing.T) {
	tests := map[string]bool{
		"y\n":   true,
		"YES\n": true,
		"n\n":   false,
		"\n":    false,
		"":      false,
		"yes":   true,
	}
	for input, want := range tests {
		if got := confirm(strings.NewReader(input), "Delete?"); got != want {
			t.Errorf("confirm(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestShortID(t *testing.T) {
	if shortID("abc") != "abc" {
		t.Error("Short ids should be kept")
	}
	if shortID("0123456789") != "01234567" {
		t.Error("Long ids should be cut to 8 characters")
	}
}
