package models

import (
	"path"
	"regexp"
	"strings"
	"time"
)

// DefaultEditMarker is the suffix an edited export carries before its extension
const DefaultEditMarker = "-Edit"

// ReplacementOutcome reports what RecordReplacement did
type ReplacementOutcome string

const (
	ReplacementCreated   ReplacementOutcome = "created"
	ReplacementUnchanged ReplacementOutcome = "unchanged"
	ReplacementChanged   ReplacementOutcome = "changed"
)

// Dirties reports whether the outcome should mark owning albums for a digest
func (o ReplacementOutcome) Dirties() bool {
	return o == ReplacementCreated || o == ReplacementChanged
}

// ImageReplacement maps an original catalog image to its edited version
type ImageReplacement struct {
	OriginalImageID int64     `json:"originalImageId"`
	EditedImageID   int64     `json:"editedImageId"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// EditMatcher recognizes edited filenames and derives the original's name
type EditMatcher struct {
	re *regexp.Regexp
}

// NewEditMatcher builds a case-insensitive matcher for marker
func NewEditMatcher(marker string) *EditMatcher {
	if marker == "" {
		marker = DefaultEditMarker
	}
	return &EditMatcher{
		re: regexp.MustCompile(`(?i)^(.+)` + regexp.QuoteMeta(marker) + `(\.[^./]+)$`),
	}
}

// OriginalName returns the filename the edited file replaces
func (m *EditMatcher) OriginalName(filename string) (string, bool) {
	base := path.Base(strings.TrimSpace(filename))
	parts := m.re.FindStringSubmatch(base)
	if parts == nil {
		return "", false
	}
	return parts[1] + parts[2], true
}

// IsEdited reports whether filename follows the edited-file convention
func (m *EditMatcher) IsEdited(filename string) bool {
	_, ok := m.OriginalName(filename)
	return ok
}
