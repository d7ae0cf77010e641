package services

import (
	"context"
	"errors"
	"sort"

	"github.com/facette/natsort"

	"github.com/photosync/proofing/internal/models"
	"github.com/photosync/proofing/internal/observability"
)

// AlbumViewService answers "what does this token see in this album",
// substituting edited images for the originals they replace.
type AlbumViewService struct {
	sessions     *SessionService
	replacements *ReplacementService
	catalog      Catalog
}

// NewAlbumViewService creates a new AlbumViewService
func NewAlbumViewService(sessions *SessionService, replacements *ReplacementService, catalog Catalog) *AlbumViewService {
	return &AlbumViewService{
		sessions:     sessions,
		replacements: replacements,
		catalog:      catalog,
	}
}

// AlbumView returns the album as seen through token, in natural filename
// order of the originals.
func (s *AlbumViewService) AlbumView(ctx context.Context, token string, albumID int64) (*models.AlbumView, error) {
	ctx, span := observability.StartServiceSpan(ctx, "AlbumView", "Get")
	defer span.End()
	span.SetAttributes(observability.AlbumID(albumID))

	if _, err := s.sessions.AssertAccess(ctx, token, albumID); err != nil {
		return nil, err
	}

	album, err := s.catalog.GetAlbum(ctx, albumID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	images, err := s.catalog.ListImages(ctx, albumID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	byID := make(map[int64]*models.CatalogImage, len(images))
	ids := make([]int64, 0, len(images))
	for i := range images {
		byID[images[i].ID] = &images[i]
		ids = append(ids, images[i].ID)
	}

	resolved, err := s.replacements.ResolveMany(ctx, ids)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	// Edited files shown in place of their original are not listed twice
	shownAsReplacement := make(map[int64]bool, len(resolved))
	for _, editedID := range resolved {
		shownAsReplacement[editedID] = true
	}

	type entry struct {
		sortKey string
		image   models.AlbumImage
	}
	entries := make([]entry, 0, len(images))

	for i := range images {
		original := &images[i]
		if shownAsReplacement[original.ID] {
			if _, isOriginalToo := resolved[original.ID]; !isOriginalToo {
				continue
			}
		}

		shown := original
		var replaces *int64
		if editedID, ok := resolved[original.ID]; ok {
			edited, err := s.editedImage(ctx, byID, editedID)
			if err != nil {
				observability.RecordError(span, err)
				return nil, err
			}
			if edited != nil {
				shown = edited
				id := original.ID
				replaces = &id
			}
		}

		entries = append(entries, entry{
			sortKey: original.Filename,
			image: models.AlbumImage{
				ID:              shown.ID,
				Filename:        shown.Filename,
				URL:             shown.URL,
				ThumbnailURL:    shown.ThumbnailURL(),
				ReplacesImageID: replaces,
			},
		})
	}

	sort.SliceStable(entries, func(a, b int) bool {
		return natsort.Compare(entries[a].sortKey, entries[b].sortKey)
	})

	view := &models.AlbumView{Album: *album, Images: make([]models.AlbumImage, 0, len(entries))}
	for _, e := range entries {
		view.Images = append(view.Images, e.image)
	}
	return view, nil
}

// editedImage finds the edited image in the listing or fetches it. A
// replacement that vanished from the catalog yields nil so the original is
// shown.
func (s *AlbumViewService) editedImage(ctx context.Context, listed map[int64]*models.CatalogImage, id int64) (*models.CatalogImage, error) {
	if img, ok := listed[id]; ok {
		return img, nil
	}
	img, err := s.catalog.GetImage(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return img, err
}
