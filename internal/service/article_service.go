package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"yuanyue-cms/internal/data"
	"yuanyue-cms/internal/logger"
	"yuanyue-cms/internal/metrics"
	"yuanyue-cms/internal/storage"

	"github.com/google/uuid"
)

// ErrValidation is returned when a required article field is missing.
var ErrValidation = errors.New("title, summary, and content are required")

// ArticleRepository defines the interface for record store operations on articles.
type ArticleRepository interface {
	ListArticles(ctx context.Context, limit int) ([]*data.Article, error)
	GetArticleByID(ctx context.Context, id string) (*data.Article, error)
	CreateArticle(ctx context.Context, article *data.Article) (*data.Article, error)
	UpdateArticle(ctx context.Context, article *data.Article) (*data.Article, error)
	UpdateDetailPageURL(ctx context.Context, id, url string) error
	DeleteArticle(ctx context.Context, id string) error
}

// ArticleServicer defines the interface for managing articles.
type ArticleServicer interface {
	ListArticles(ctx context.Context) ([]*data.Article, error)
	LatestArticles(ctx context.Context) ([]*data.Article, error)
	GetArticle(ctx context.Context, id string) (*data.Article, error)
	CreateArticle(ctx context.Context, in ArticleInput, img *Image) (*data.Article, error)
	UpdateArticle(ctx context.Context, id string, patch ArticleInput, img *Image) (*data.Article, error)
	DeleteArticle(ctx context.Context, id string) error
	MigrateDetailURLs(ctx context.Context) (*MigrationResult, error)
}

// LatestLimit is the number of articles returned by LatestArticles.
const LatestLimit = 3

// ArticleInput carries the text fields of a create or update request.
// An empty field means "not provided".
type ArticleInput struct {
	Title   string
	Summary string
	Content string
	Author  string
}

// Image is an uploaded image attachment.
type Image struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Options holds the site defaults applied to new articles.
type Options struct {
	PlaceholderImage string
	DefaultAuthor    string
	DetailRoute      string
}

// ArticleService provides business logic for managing articles.
type ArticleService struct {
	repo  ArticleRepository
	blobs storage.BlobStore
	opts  Options
	log   logger.Logger

	now       func() time.Time
	newSuffix func() string
}

// NewArticleService creates a new ArticleService with the given collaborators.
func NewArticleService(repo ArticleRepository, blobs storage.BlobStore, opts Options, log logger.Logger) *ArticleService {
	return &ArticleService{
		repo:      repo,
		blobs:     blobs,
		opts:      opts,
		log:       log,
		now:       time.Now,
		newSuffix: uuid.NewString,
	}
}

// ListArticles returns every article, newest first.
func (s *ArticleService) ListArticles(ctx context.Context) ([]*data.Article, error) {
	return s.repo.ListArticles(ctx, 0)
}

// LatestArticles returns at most LatestLimit articles, newest first.
func (s *ArticleService) LatestArticles(ctx context.Context) ([]*data.Article, error) {
	return s.repo.ListArticles(ctx, LatestLimit)
}

// GetArticle returns a single article. A missing article yields data.ErrArticleNotFound.
func (s *ArticleService) GetArticle(ctx context.Context, id string) (*data.Article, error) {
	return s.repo.GetArticleByID(ctx, id)
}

// ValidateInput checks that every field required on creation is present.
func ValidateInput(in ArticleInput) error {
	if in.Title == "" || in.Summary == "" || in.Content == "" {
		return ErrValidation
	}
	return nil
}

// CreateArticle validates the input, uploads the optional image and stores the new article.
// An image that fails to upload leaves the placeholder in place.
func (s *ArticleService) CreateArticle(ctx context.Context, in ArticleInput, img *Image) (*data.Article, error) {
	if err := ValidateInput(in); err != nil {
		return nil, err
	}

	imageURL := s.opts.PlaceholderImage
	if img != nil {
		if uploaded, ok := s.uploadImage(ctx, img); ok {
			imageURL = uploaded
		}
	}

	now := s.now().UTC()
	id := strconv.FormatInt(now.UnixMilli(), 10)
	author := in.Author
	if author == "" {
		author = s.opts.DefaultAuthor
	}

	article := &data.Article{
		ID:            id,
		Title:         in.Title,
		Summary:       in.Summary,
		Content:       in.Content,
		Author:        author,
		Date:          now.Truncate(time.Millisecond),
		Image:         imageURL,
		DetailPageURL: DetailURL(s.opts.DetailRoute, id),
	}

	created, err := s.repo.CreateArticle(ctx, article)
	if err != nil {
		return nil, err
	}
	s.log.With(map[string]interface{}{"article_id": created.ID}).Info("Article created")
	return created, nil
}

// UpdateArticle applies a partial update to an existing article.
func (s *ArticleService) UpdateArticle(ctx context.Context, id string, patch ArticleInput, img *Image) (*data.Article, error) {
	existing, err := s.repo.GetArticleByID(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := MergeFields(*existing, patch)
	if img != nil {
		if uploaded, ok := s.uploadImage(ctx, img); ok {
			merged.Image = uploaded
		}
	}

	updated, err := s.repo.UpdateArticle(ctx, &merged)
	if err != nil {
		return nil, err
	}
	s.log.With(map[string]interface{}{"article_id": id}).Info("Article updated")
	return updated, nil
}

// MergeFields returns existing with every non-empty text field of patch applied.
// ID, Date, Image and DetailPageURL are carried over unchanged.
func MergeFields(existing data.Article, patch ArticleInput) data.Article {
	merged := existing
	if patch.Title != "" {
		merged.Title = patch.Title
	}
	if patch.Summary != "" {
		merged.Summary = patch.Summary
	}
	if patch.Content != "" {
		merged.Content = patch.Content
	}
	if patch.Author != "" {
		merged.Author = patch.Author
	}
	return merged
}

// DeleteArticle removes an article. Its image blob is left in storage.
func (s *ArticleService) DeleteArticle(ctx context.Context, id string) error {
	if err := s.repo.DeleteArticle(ctx, id); err != nil {
		return err
	}
	s.log.With(map[string]interface{}{"article_id": id}).Info("Article deleted")
	return nil
}

// uploadImage stores the image under a fresh name and returns its public URL.
// Failures are logged and reported as ok == false.
func (s *ArticleService) uploadImage(ctx context.Context, img *Image) (string, bool) {
	name := s.blobName(img.Filename)
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := s.blobs.Upload(ctx, name, img.Body, img.Size, contentType); err != nil {
		s.log.With(map[string]interface{}{"blob": name}).Error(err, "Image upload failed, keeping previous image")
		metrics.RecordImageUpload(false)
		return "", false
	}
	metrics.RecordImageUpload(true)
	return s.blobs.PublicURL(name), true
}

// blobName builds "<unix millis>-<random><ext>" from the uploaded file name.
func (s *ArticleService) blobName(filename string) string {
	return fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), s.newSuffix(), filepath.Ext(filename))
}

// DetailURL returns the dynamic detail page URL of an article.
func DetailURL(route, id string) string {
	return route + "?id=" + url.QueryEscape(id)
}

// MigrationResult reports the outcome of MigrateDetailURLs.
type MigrationResult struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// Markers of detail URLs written before the dynamic detail route existed.
const (
	legacyStaticPagePrefix = "/articles/article-"
	legacyPlaceholder      = "News page"
)

// IsLegacyDetailURL reports whether a stored detail URL needs rewriting.
func IsLegacyDetailURL(u string) bool {
	return u == "" ||
		strings.Contains(u, legacyStaticPagePrefix) ||
		strings.Contains(u, legacyPlaceholder)
}

// MigrateDetailURLs rewrites legacy detail URLs to the dynamic route.
// Records that fail to update are counted as failed and left for the next run.
func (s *ArticleService) MigrateDetailURLs(ctx context.Context) (*MigrationResult, error) {
	articles, err := s.repo.ListArticles(ctx, 0)
	if err != nil {
		return nil, err
	}

	result := &MigrationResult{Total: len(articles)}
	for _, a := range articles {
		if !IsLegacyDetailURL(a.DetailPageURL) {
			result.Skipped++
			continue
		}

		newURL := DetailURL(s.opts.DetailRoute, a.ID)
		log := s.log.With(map[string]interface{}{"article_id": a.ID, "detail_page_url": newURL})
		if err := s.repo.UpdateDetailPageURL(ctx, a.ID, newURL); err != nil {
			log.Error(err, "Failed to migrate article detail URL")
			result.Failed++
			continue
		}
		log.Info("Migrated article detail URL")
		result.Updated++
	}

	metrics.RecordURLMigration(result.Updated, result.Skipped, result.Failed)
	return result, nil
}
