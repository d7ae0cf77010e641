package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEditMatcher_OriginalName(t *testing.T) {
	tests := []struct {
		name     string
		marker   string
		filename string
		want     string
		ok       bool
	}{
		{"default marker", "", "IMG_1-Edit.jpg", "IMG_1.jpg", true},
		{"keeps the edited extension", "", "IMG_1-Edit.tif", "IMG_1.tif", true},
		{"case-insensitive marker", "", "IMG_1-EDIT.JPG", "IMG_1.JPG", true},
		{"strips directories", "", "exports/IMG_1-Edit.jpg", "IMG_1.jpg", true},
		{"trims whitespace", "", "  IMG_1-Edit.jpg ", "IMG_1.jpg", true},
		{"only the last marker is stripped", "", "IMG_1-Edit-Edit.jpg", "IMG_1-Edit.jpg", true},
		{"custom marker", "_retouched", "DSC_4_retouched.png", "DSC_4.png", true},
		{"custom marker ignores the default", "_retouched", "DSC_4-Edit.png", "", false},
		{"plain original", "", "IMG_1.jpg", "", false},
		{"marker not before the extension", "", "IMG_1-Edited.jpg", "", false},
		{"no extension", "", "IMG_1-Edit", "", false},
		{"marker alone", "", "-Edit.jpg", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewEditMatcher(tt.marker)
			got, ok := m.OriginalName(tt.filename)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, m.IsEdited(tt.filename))
		})
	}
}

func TestReplacementOutcome_Dirties(t *testing.T) {
	assert.True(t, ReplacementCreated.Dirties())
	assert.True(t, ReplacementChanged.Dirties())
	assert.False(t, ReplacementUnchanged.Dirties())
}
