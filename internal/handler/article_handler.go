package handler

import (
	"encoding/json"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"yuanyue-cms/internal/data"
	"yuanyue-cms/internal/logger"
	"yuanyue-cms/internal/middleware"
	"yuanyue-cms/internal/service"

	"github.com/go-chi/chi/v5"
)

// formOverhead is the room left for text fields on top of the image size cap.
const formOverhead = 1 << 20

// multipartMemory is how much of a multipart body is held in memory before spilling to temp files.
const multipartMemory = 32 << 20

// ArticleHandler serves the article JSON API.
type ArticleHandler struct {
	articles       service.ArticleServicer
	log            logger.Logger
	maxUploadBytes int64
}

// NewArticleHandler creates a new ArticleHandler with the given dependencies.
func NewArticleHandler(as service.ArticleServicer, log logger.Logger, maxUploadBytes int64) *ArticleHandler {
	return &ArticleHandler{
		articles:       as,
		log:            log,
		maxUploadBytes: maxUploadBytes,
	}
}

type articleResponse struct {
	Message string        `json:"message"`
	Article *data.Article `json:"article"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type migrationResponse struct {
	Message string `json:"message"`
	*service.MigrationResult
}

func (h *ArticleHandler) listHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	articles, err := h.articles.ListArticles(r.Context())
	if err != nil {
		return &middleware.AppError{Error: err, Message: "Failed to fetch articles", Code: http.StatusInternalServerError}
	}
	middleware.WriteJSON(w, http.StatusOK, articles)
	return nil
}

func (h *ArticleHandler) latestHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	articles, err := h.articles.LatestArticles(r.Context())
	if err != nil {
		return &middleware.AppError{Error: err, Message: "Failed to fetch latest articles", Code: http.StatusInternalServerError}
	}
	middleware.WriteJSON(w, http.StatusOK, articles)
	return nil
}

// getHandler returns 404 only when the article is confirmed missing; store failures are 500.
func (h *ArticleHandler) getHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	article, err := h.articles.GetArticle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, data.ErrArticleNotFound) {
			return &middleware.AppError{Error: err, Message: "Article not found", Code: http.StatusNotFound}
		}
		return &middleware.AppError{Error: err, Message: "Failed to fetch article", Code: http.StatusInternalServerError}
	}
	middleware.WriteJSON(w, http.StatusOK, article)
	return nil
}

func (h *ArticleHandler) createHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	in, img, cleanup, appErr := h.parseArticleForm(w, r)
	if appErr != nil {
		return appErr
	}
	defer cleanup()

	article, err := h.articles.CreateArticle(r.Context(), in, img)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return &middleware.AppError{Error: err, Message: "Title, summary, and content are required", Code: http.StatusBadRequest}
		}
		return &middleware.AppError{Error: err, Message: "Failed to create article", Code: http.StatusInternalServerError}
	}
	middleware.WriteJSON(w, http.StatusCreated, articleResponse{Message: "Article created successfully", Article: article})
	return nil
}

func (h *ArticleHandler) updateHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	in, img, cleanup, appErr := h.parseArticleForm(w, r)
	if appErr != nil {
		return appErr
	}
	defer cleanup()

	article, err := h.articles.UpdateArticle(r.Context(), chi.URLParam(r, "id"), in, img)
	if err != nil {
		if errors.Is(err, data.ErrArticleNotFound) {
			return &middleware.AppError{Error: err, Message: "Article not found", Code: http.StatusNotFound}
		}
		return &middleware.AppError{Error: err, Message: "Failed to update article", Code: http.StatusInternalServerError}
	}
	middleware.WriteJSON(w, http.StatusOK, articleResponse{Message: "Article updated successfully", Article: article})
	return nil
}

func (h *ArticleHandler) deleteHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	if err := h.articles.DeleteArticle(r.Context(), chi.URLParam(r, "id")); err != nil {
		return &middleware.AppError{Error: err, Message: "Failed to delete article", Code: http.StatusInternalServerError}
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Article deleted successfully"})
	return nil
}

func (h *ArticleHandler) migrateHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	result, err := h.articles.MigrateDetailURLs(r.Context())
	if err != nil {
		return &middleware.AppError{Error: err, Message: "Failed to migrate article URLs", Code: http.StatusInternalServerError}
	}
	middleware.WriteJSON(w, http.StatusOK, migrationResponse{
		Message:         "Article URLs migrated to dynamic format successfully",
		MigrationResult: result,
	})
	return nil
}

// articleJSON is the JSON request body accepted as an alternative to a form.
type articleJSON struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Content string `json:"content"`
	Author  string `json:"author"`
}

// parseArticleForm reads the text fields and the optional "image" file of a create or
// update request. The returned cleanup must be called once the image has been consumed.
func (h *ArticleHandler) parseArticleForm(w http.ResponseWriter, r *http.Request) (service.ArticleInput, *service.Image, func(), *middleware.AppError) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+formOverhead)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var body articleJSON
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return service.ArticleInput{}, nil, noop, h.bodyError(err, "Invalid JSON body")
		}
		return service.ArticleInput(body), nil, noop, nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return service.ArticleInput{}, nil, noop, h.bodyError(err, "Invalid form data")
		}

	default:
		if err := r.ParseForm(); err != nil {
			return service.ArticleInput{}, nil, noop, h.bodyError(err, "Invalid form data")
		}
	}

	in := service.ArticleInput{
		Title:   r.PostFormValue("title"),
		Summary: r.PostFormValue("summary"),
		Content: r.PostFormValue("content"),
		Author:  r.PostFormValue("author"),
	}

	cleanup := func() {
		if r.MultipartForm != nil {
			r.MultipartForm.RemoveAll()
		}
	}
	if r.MultipartForm == nil {
		return in, nil, cleanup, nil
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return in, nil, cleanup, nil
		}
		cleanup()
		return service.ArticleInput{}, nil, noop, &middleware.AppError{Error: err, Message: "Invalid image upload", Code: http.StatusBadRequest}
	}
	if header.Size > h.maxUploadBytes {
		file.Close()
		cleanup()
		return service.ArticleInput{}, nil, noop, &middleware.AppError{
			Error:   errors.New("image exceeds upload limit"),
			Message: "Image exceeds the 10MB upload limit",
			Code:    http.StatusRequestEntityTooLarge,
		}
	}

	img := &service.Image{
		Filename:    header.Filename,
		ContentType: imageContentType(header),
		Size:        header.Size,
		Body:        file,
	}
	return in, img, func() {
		file.Close()
		cleanup()
	}, nil
}

// bodyError maps a body read failure to 413 when the size cap was hit and 400 otherwise.
func (h *ArticleHandler) bodyError(err error, message string) *middleware.AppError {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return &middleware.AppError{Error: err, Message: "Image exceeds the 10MB upload limit", Code: http.StatusRequestEntityTooLarge}
	}
	return &middleware.AppError{Error: err, Message: message, Code: http.StatusBadRequest}
}

func imageContentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
