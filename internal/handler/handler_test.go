package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	"yuanyue-cms/internal/data"
	"yuanyue-cms/internal/logger"
	"yuanyue-cms/internal/service"
	"yuanyue-cms/internal/storage"
	"yuanyue-cms/internal/view"
	"yuanyue-cms/web"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memArticleRepository is an in-memory service.ArticleRepository.
type memArticleRepository struct {
	mu       sync.Mutex
	articles map[string]data.Article
	listErr  error
}

var _ service.ArticleRepository = (*memArticleRepository)(nil)

func newMemArticleRepository() *memArticleRepository {
	return &memArticleRepository{articles: make(map[string]data.Article)}
}

func (m *memArticleRepository) ListArticles(ctx context.Context, limit int) ([]*data.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*data.Article, 0, len(m.articles))
	for _, a := range m.articles {
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID > out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memArticleRepository) GetArticleByID(ctx context.Context, id string) (*data.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[id]
	if !ok {
		return nil, data.ErrArticleNotFound
	}
	return &a, nil
}

func (m *memArticleRepository) CreateArticle(ctx context.Context, article *data.Article) (*data.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[article.ID]; ok {
		return nil, errors.New("duplicate id")
	}
	m.articles[article.ID] = *article
	a := *article
	return &a, nil
}

func (m *memArticleRepository) UpdateArticle(ctx context.Context, article *data.Article) (*data.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.articles[article.ID]
	if !ok {
		return nil, data.ErrArticleNotFound
	}
	existing.Title = article.Title
	existing.Summary = article.Summary
	existing.Content = article.Content
	existing.Author = article.Author
	existing.Image = article.Image
	m.articles[article.ID] = existing
	return &existing, nil
}

func (m *memArticleRepository) UpdateDetailPageURL(ctx context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[id]
	if !ok {
		return data.ErrArticleNotFound
	}
	a.DetailPageURL = url
	m.articles[id] = a
	return nil
}

func (m *memArticleRepository) DeleteArticle(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.articles, id)
	return nil
}

func (m *memArticleRepository) Ping(ctx context.Context) error { return nil }

func (m *memArticleRepository) seed(a data.Article) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles[a.ID] = a
}

func (m *memArticleRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.articles)
}

type testApp struct {
	Router *chi.Mux
	Repo   *memArticleRepository
	Blobs  *storage.SQLiteStore
}

// setupTest wires the real service, views and router over an in-memory record
// store and an in-memory SQLite blob store.
func setupTest(t *testing.T, maxUpload int64) *testApp {
	t.Helper()

	blobs, err := storage.NewSQLiteStore(":memory:", "yuanyue", "/uploads")
	require.NoError(t, err)
	t.Cleanup(func() { blobs.Close() })

	v, err := view.New(web.TemplateFS)
	require.NoError(t, err)

	log := logger.Nop()
	repo := newMemArticleRepository()
	svc := service.NewArticleService(repo, blobs, service.Options{
		PlaceholderImage: "/images/design/hero-main.png",
		DefaultAuthor:    "Admin",
		DetailRoute:      "/pages/article.html",
	}, log)

	router := NewRouter(Routes{
		Articles:       NewArticleHandler(svc, log, maxUpload),
		Pages:          NewPageHandler(svc, v, log),
		SEO:            NewSeoHandler(svc, "https://news.example.com/"),
		Uploads:        NewUploadHandler(blobs),
		Health:         NewHealthHandler(repo, log),
		View:           v,
		Log:            log,
		AllowedOrigins: []string{"*"},
		DetailRoute:    "/pages/article.html",
		UploadPrefix:   "/uploads",
	})
	return &testApp{Router: router, Repo: repo, Blobs: blobs}
}

type imagePart struct {
	filename    string
	contentType string
	body        []byte
}

// multipartRequest builds a multipart/form-data request with text fields and an optional image.
func multipartRequest(t *testing.T, method, path string, fields map[string]string, img *imagePart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if img != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="`+img.filename+`"`)
		h.Set("Content-Type", img.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(img.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(app *testApp, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	app.Router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), "body: %s", rr.Body.String())
}

type createResponse struct {
	Message string       `json:"message"`
	Article data.Article `json:"article"`
}

func seedArticle(id string, date time.Time, detail string) data.Article {
	return data.Article{
		ID:            id,
		Title:         "Title " + id,
		Summary:       "Summary " + id,
		Content:       "<p>Body " + id + "</p>",
		Author:        "Admin",
		Date:          date,
		Image:         "/images/design/hero-main.png",
		DetailPageURL: detail,
	}
}

func TestCreateArticle(t *testing.T) {
	t.Run("text fields only uses defaults", func(t *testing.T) {
		app := setupTest(t, 10<<20)
		req := multipartRequest(t, http.MethodPost, "/api/articles", map[string]string{
			"title":   "Opening",
			"summary": "We open.",
			"content": "<p>Hi</p>",
		}, nil)

		rr := serve(app, req)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var resp createResponse
		decode(t, rr, &resp)
		assert.Equal(t, "Article created successfully", resp.Message)
		assert.NotEmpty(t, resp.Article.ID)
		assert.Equal(t, "Opening", resp.Article.Title)
		assert.Equal(t, "Admin", resp.Article.Author)
		assert.Equal(t, "/images/design/hero-main.png", resp.Article.Image)
		assert.Equal(t, "/pages/article.html?id="+resp.Article.ID, resp.Article.DetailPageURL)
		assert.False(t, resp.Article.Date.IsZero())

		get := serve(app, httptest.NewRequest(http.MethodGet, "/api/articles/"+resp.Article.ID, nil))
		require.Equal(t, http.StatusOK, get.Code)
		var found data.Article
		decode(t, get, &found)
		assert.Equal(t, resp.Article.ID, found.ID)
		assert.Equal(t, "<p>Hi</p>", found.Content)
	})

	t.Run("image is uploaded and served back", func(t *testing.T) {
		app := setupTest(t, 10<<20)
		png := []byte("\x89PNG fake image bytes")
		req := multipartRequest(t, http.MethodPost, "/api/articles", map[string]string{
			"title":   "With image",
			"summary": "s",
			"content": "c",
			"author":  "Li Wei",
		}, &imagePart{filename: "cover.png", contentType: "image/png", body: png})

		rr := serve(app, req)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var resp createResponse
		decode(t, rr, &resp)
		assert.Equal(t, "Li Wei", resp.Article.Author)
		require.True(t, strings.HasPrefix(resp.Article.Image, "/uploads/"), resp.Article.Image)
		assert.True(t, strings.HasSuffix(resp.Article.Image, ".png"), resp.Article.Image)

		img := serve(app, httptest.NewRequest(http.MethodGet, resp.Article.Image, nil))
		require.Equal(t, http.StatusOK, img.Code)
		assert.Equal(t, "image/png", img.Header().Get("Content-Type"))
		assert.Equal(t, png, img.Body.Bytes())
	})

	t.Run("missing required field", func(t *testing.T) {
		app := setupTest(t, 10<<20)
		req := multipartRequest(t, http.MethodPost, "/api/articles", map[string]string{
			"title":   "No content",
			"summary": "s",
		}, &imagePart{filename: "a.jpg", contentType: "image/jpeg", body: []byte("jpeg")})

		rr := serve(app, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.JSONEq(t, `{"error":"Title, summary, and content are required"}`, rr.Body.String())
		assert.Equal(t, 0, app.Repo.count())
	})

	t.Run("oversized image", func(t *testing.T) {
		app := setupTest(t, 16)
		req := multipartRequest(t, http.MethodPost, "/api/articles", map[string]string{
			"title":   "t",
			"summary": "s",
			"content": "c",
		}, &imagePart{filename: "big.png", contentType: "image/png", body: bytes.Repeat([]byte("x"), 64)})

		rr := serve(app, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
		assert.JSONEq(t, `{"error":"Image exceeds the 10MB upload limit"}`, rr.Body.String())
		assert.Equal(t, 0, app.Repo.count())
	})

	t.Run("json body", func(t *testing.T) {
		app := setupTest(t, 10<<20)
		req := httptest.NewRequest(http.MethodPost, "/api/articles",
			strings.NewReader(`{"title":"J","summary":"S","content":"C"}`))
		req.Header.Set("Content-Type", "application/json")

		rr := serve(app, req)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var resp createResponse
		decode(t, rr, &resp)
		assert.Equal(t, "J", resp.Article.Title)
	})

	t.Run("malformed json", func(t *testing.T) {
		app := setupTest(t, 10<<20)
		req := httptest.NewRequest(http.MethodPost, "/api/articles", strings.NewReader(`{"title":`))
		req.Header.Set("Content-Type", "application/json")

		rr := serve(app, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestListAndLatest(t *testing.T) {
	app := setupTest(t, 10<<20)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"1", "2", "3", "4"} {
		app.Repo.seed(seedArticle(id, base.Add(time.Duration(i)*time.Hour), "/pages/article.html?id="+id))
	}

	rr := serve(app, httptest.NewRequest(http.MethodGet, "/api/articles", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var all []data.Article
	decode(t, rr, &all)
	require.Len(t, all, 4)
	assert.Equal(t, "4", all[0].ID)
	assert.Equal(t, "1", all[3].ID)

	rr = serve(app, httptest.NewRequest(http.MethodGet, "/api/articles/latest", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var latest []data.Article
	decode(t, rr, &latest)
	require.Len(t, latest, 3)
	assert.Equal(t, []string{"4", "3", "2"}, []string{latest[0].ID, latest[1].ID, latest[2].ID})
}

func TestListEmptyIsArray(t *testing.T) {
	app := setupTest(t, 10<<20)
	rr := serve(app, httptest.NewRequest(http.MethodGet, "/api/articles", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestListStoreFailure(t *testing.T) {
	app := setupTest(t, 10<<20)
	app.Repo.listErr = errors.New("connection refused")

	rr := serve(app, httptest.NewRequest(http.MethodGet, "/api/articles", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch articles"}`, rr.Body.String())

	rr = serve(app, httptest.NewRequest(http.MethodGet, "/api/articles/latest", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch latest articles"}`, rr.Body.String())
}

func TestGetArticleNotFound(t *testing.T) {
	app := setupTest(t, 10<<20)
	rr := serve(app, httptest.NewRequest(http.MethodGet, "/api/articles/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"Article not found"}`, rr.Body.String())
}

func TestUpdateArticle(t *testing.T) {
	date := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("partial update keeps other fields", func(t *testing.T) {
		app := setupTest(t, 10<<20)
		app.Repo.seed(seedArticle("100", date, "/pages/article.html?id=100"))

		req := multipartRequest(t, http.MethodPut, "/api/articles/100", map[string]string{"title": "Renamed"}, nil)
		rr := serve(app, req)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp createResponse
		decode(t, rr, &resp)
		assert.Equal(t, "Article updated successfully", resp.Message)
		assert.Equal(t, "Renamed", resp.Article.Title)
		assert.Equal(t, "Summary 100", resp.Article.Summary)
		assert.Equal(t, "<p>Body 100</p>", resp.Article.Content)
		assert.Equal(t, "/images/design/hero-main.png", resp.Article.Image)
		assert.True(t, resp.Article.Date.Equal(date))
		assert.Equal(t, "/pages/article.html?id=100", resp.Article.DetailPageURL)
	})

	t.Run("new image replaces old", func(t *testing.T) {
		app := setupTest(t, 10<<20)
		app.Repo.seed(seedArticle("100", date, "/pages/article.html?id=100"))

		req := multipartRequest(t, http.MethodPut, "/api/articles/100", nil,
			&imagePart{filename: "new.webp", contentType: "image/webp", body: []byte("webp")})
		rr := serve(app, req)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp createResponse
		decode(t, rr, &resp)
		assert.True(t, strings.HasPrefix(resp.Article.Image, "/uploads/"))
		assert.Equal(t, "Title 100", resp.Article.Title)
	})

	t.Run("unknown id", func(t *testing.T) {
		app := setupTest(t, 10<<20)
		req := multipartRequest(t, http.MethodPut, "/api/articles/missing", map[string]string{"title": "x"}, nil)
		rr := serve(app, req)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.JSONEq(t, `{"error":"Article not found"}`, rr.Body.String())
		assert.Equal(t, 0, app.Repo.count())
	})
}

func TestDeleteArticle(t *testing.T) {
	app := setupTest(t, 10<<20)
	app.Repo.seed(seedArticle("7", time.Now().UTC(), "/pages/article.html?id=7"))

	rr := serve(app, httptest.NewRequest(http.MethodDelete, "/api/articles/7", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"Article deleted successfully"}`, rr.Body.String())

	rr = serve(app, httptest.NewRequest(http.MethodGet, "/api/articles/7", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// Unknown ids still report success.
	rr = serve(app, httptest.NewRequest(http.MethodDelete, "/api/articles/7", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMigrateDetailURLs(t *testing.T) {
	app := setupTest(t, 10<<20)
	now := time.Now().UTC()
	app.Repo.seed(seedArticle("1", now, ""))
	app.Repo.seed(seedArticle("2", now, "/pages/articles/article-2.html"))
	app.Repo.seed(seedArticle("3", now, "News page"))
	app.Repo.seed(seedArticle("4", now, "/pages/article.html?id=4"))

	rr := serve(app, httptest.NewRequest(http.MethodPost, "/api/migrate-to-dynamic-urls", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{
		"message": "Article URLs migrated to dynamic format successfully",
		"updated": 3, "skipped": 1, "failed": 0, "total": 4
	}`, rr.Body.String())

	a, err := app.Repo.GetArticleByID(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "/pages/article.html?id=2", a.DetailPageURL)

	rr = serve(app, httptest.NewRequest(http.MethodPost, "/api/migrate-to-dynamic-urls", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var second service.MigrationResult
	decode(t, rr, &second)
	assert.Equal(t, service.MigrationResult{Updated: 0, Skipped: 4, Failed: 0, Total: 4}, second)
}

func TestCORSPreflight(t *testing.T) {
	app := setupTest(t, 10<<20)
	req := httptest.NewRequest(http.MethodOptions, "/api/articles", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rr := serve(app, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestArticlePage(t *testing.T) {
	app := setupTest(t, 10<<20)
	a := seedArticle("55", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), "/pages/article.html?id=55")
	a.Content = `<p>Safe</p><script>alert("x")</script>`
	app.Repo.seed(a)

	rr := serve(app, httptest.NewRequest(http.MethodGet, "/pages/article.html?id=55", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Title 55")
	assert.Contains(t, body, "<p>Safe</p>")
	assert.Contains(t, body, "March 1, 2025")
	assert.NotContains(t, body, "<script>")

	rr = serve(app, httptest.NewRequest(http.MethodGet, "/pages/article.html?id=nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")

	rr = serve(app, httptest.NewRequest(http.MethodGet, "/pages/article.html", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUploadNameNeedingEscape(t *testing.T) {
	app := setupTest(t, 10<<20)
	name := "1700000000000-abc.p g#x"
	require.NoError(t, app.Blobs.Upload(context.Background(), name, strings.NewReader("img"), 3, "image/png"))

	rr := serve(app, httptest.NewRequest(http.MethodGet, app.Blobs.PublicURL(name), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "img", rr.Body.String())
}

func TestUploadNotFound(t *testing.T) {
	app := setupTest(t, 10<<20)
	rr := serve(app, httptest.NewRequest(http.MethodGet, "/uploads/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSeo(t *testing.T) {
	app := setupTest(t, 10<<20)
	app.Repo.seed(seedArticle("9", time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC), "/pages/article.html?id=9"))
	app.Repo.seed(seedArticle("10", time.Date(2025, 4, 3, 12, 0, 0, 0, time.UTC), "News page"))
	app.Repo.seed(seedArticle("11", time.Date(2025, 4, 4, 12, 0, 0, 0, time.UTC), "/pages/articles/article-11.html"))
	app.Repo.seed(seedArticle("12", time.Date(2025, 4, 5, 12, 0, 0, 0, time.UTC), ""))

	rr := serve(app, httptest.NewRequest(http.MethodGet, "/robots.txt", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Sitemap: https://news.example.com/sitemap.xml")

	rr = serve(app, httptest.NewRequest(http.MethodGet, "/sitemap.xml", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.Contains(t, string(body), "<loc>https://news.example.com/pages/article.html?id=9</loc>")
	assert.Contains(t, string(body), "<lastmod>2025-04-02</lastmod>")
	assert.Equal(t, 1, strings.Count(string(body), "<loc>"), string(body))
	assert.NotContains(t, string(body), "News page")
	assert.NotContains(t, string(body), "article-11")
}

func TestHealthAndMetrics(t *testing.T) {
	app := setupTest(t, 10<<20)

	rr := serve(app, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	serve(app, httptest.NewRequest(http.MethodGet, "/api/articles", nil))
	rr = serve(app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "cms_http_requests_total")
}
