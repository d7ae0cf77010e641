package models

import "strings"

// Thumbnail preset names served by the catalog, best first
const (
	ThumbPresetMedium = "medium"
	ThumbPresetSmall  = "small"
	ThumbPresetLarge  = "large"
)

// CatalogAlbum is an album as exposed by the external content catalog
type CatalogAlbum struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Slug     string `json:"slug,omitempty"`
	CoverURL string `json:"coverUrl,omitempty"`
}

// CatalogImage is an image as exposed by the external content catalog
type CatalogImage struct {
	ID         int64             `json:"id"`
	Filename   string            `json:"filename"`
	URL        string            `json:"url,omitempty"`
	PreviewURL string            `json:"previewUrl,omitempty"`
	Thumbnails map[string]string `json:"thumbnails,omitempty"`
	AlbumIDs   []int64           `json:"albumIds,omitempty"`
}

// ThumbnailURL picks the best available thumbnail for display
func (i *CatalogImage) ThumbnailURL() string {
	return FirstNonEmpty(
		i.Thumbnails[ThumbPresetMedium],
		i.Thumbnails[ThumbPresetSmall],
		i.Thumbnails[ThumbPresetLarge],
		i.PreviewURL,
		i.URL,
	)
}

// FirstNonEmpty returns the first candidate that is not blank
func FirstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}

// AlbumImage is an image as presented to a client, after edited versions
// have been substituted for their originals.
type AlbumImage struct {
	ID              int64  `json:"id"`
	Filename        string `json:"filename"`
	URL             string `json:"url,omitempty"`
	ThumbnailURL    string `json:"thumbnailUrl,omitempty"`
	ReplacesImageID *int64 `json:"replacesImageId,omitempty"`
}

// AlbumView is what a session sees for one album
type AlbumView struct {
	Album  CatalogAlbum `json:"album"`
	Images []AlbumImage `json:"images"`
}
