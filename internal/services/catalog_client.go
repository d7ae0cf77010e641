package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/photosync/proofing/internal/config"
	"github.com/photosync/proofing/internal/models"
	"github.com/photosync/proofing/internal/observability"
)

// Catalog is the read side of the external content catalog
type Catalog interface {
	ListAlbums(ctx context.Context) ([]models.CatalogAlbum, error)
	GetAlbum(ctx context.Context, id int64) (*models.CatalogAlbum, error)
	ListImages(ctx context.Context, albumID int64) ([]models.CatalogImage, error)
	GetImage(ctx context.Context, id int64) (*models.CatalogImage, error)
	FindImageByFilename(ctx context.Context, filename string) (*models.CatalogImage, error)
}

// CatalogClient talks to the catalog's JSON API. Not found responses map to
// models.ErrCatalogNotFound; network failures, 429 and 5xx map to
// transient errors.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewCatalogClient creates a catalog client. When client credentials are
// configured, requests carry an OAuth2 bearer token.
func NewCatalogClient(cfg config.Catalog) *CatalogClient {
	base := &http.Client{Timeout: cfg.Timeout()}
	httpClient := base
	if cfg.UsesOAuth() {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = cc.Client(ctx)
	}

	return &CatalogClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		timeout:    cfg.Timeout(),
	}
}

func (c *CatalogClient) ListAlbums(ctx context.Context) ([]models.CatalogAlbum, error) {
	var albums []models.CatalogAlbum
	if err := c.getJSON(ctx, "ListAlbums", "/albums", nil, &albums); err != nil {
		return nil, err
	}
	return albums, nil
}

func (c *CatalogClient) GetAlbum(ctx context.Context, id int64) (*models.CatalogAlbum, error) {
	var album models.CatalogAlbum
	if err := c.getJSON(ctx, "GetAlbum", fmt.Sprintf("/albums/%d", id), nil, &album); err != nil {
		return nil, err
	}
	return &album, nil
}

func (c *CatalogClient) ListImages(ctx context.Context, albumID int64) ([]models.CatalogImage, error) {
	var images []models.CatalogImage
	if err := c.getJSON(ctx, "ListImages", fmt.Sprintf("/albums/%d/images", albumID), nil, &images); err != nil {
		return nil, err
	}
	for i := range images {
		if len(images[i].AlbumIDs) == 0 {
			images[i].AlbumIDs = []int64{albumID}
		}
	}
	return images, nil
}

func (c *CatalogClient) GetImage(ctx context.Context, id int64) (*models.CatalogImage, error) {
	var image models.CatalogImage
	if err := c.getJSON(ctx, "GetImage", fmt.Sprintf("/images/%d", id), nil, &image); err != nil {
		return nil, err
	}
	return &image, nil
}

// FindImageByFilename returns the image whose filename is exactly filename
func (c *CatalogClient) FindImageByFilename(ctx context.Context, filename string) (*models.CatalogImage, error) {
	var images []models.CatalogImage
	q := url.Values{"filename": {filename}}
	if err := c.getJSON(ctx, "FindImageByFilename", "/images", q, &images); err != nil {
		return nil, err
	}
	for i := range images {
		if images[i].Filename == filename {
			return &images[i], nil
		}
	}
	return nil, models.ErrCatalogNotFound
}

func (c *CatalogClient) getJSON(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	ctx, span := observability.StartClientSpan(ctx, "catalog", op)
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordError(span, err)
		return models.Transient(models.ErrCatalogUnavailable.Message, err)
	}
	defer resp.Body.Close()

	if err := checkCatalogStatus(resp); err != nil {
		observability.RecordError(span, err)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("decode catalog %s response: %w", op, err)
	}
	observability.SetSuccess(span)
	return nil
}

func checkCatalogStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return models.ErrCatalogNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return models.Transient(models.ErrCatalogUnavailable.Message, statusError(resp))
	default:
		return statusError(resp)
	}
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("catalog responded %d: %s", resp.StatusCode, msg)
}
