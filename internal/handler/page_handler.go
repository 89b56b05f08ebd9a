package handler

import (
	"errors"
	"html/template"
	"net/http"
	"yuanyue-cms/internal/data"
	"yuanyue-cms/internal/logger"
	"yuanyue-cms/internal/middleware"
	"yuanyue-cms/internal/service"
	"yuanyue-cms/internal/view"

	"github.com/microcosm-cc/bluemonday"
)

// PageHandler renders the public article detail page.
type PageHandler struct {
	articles service.ArticleServicer
	view     *view.View
	log      logger.Logger
	policy   *bluemonday.Policy
}

// NewPageHandler creates a new PageHandler with the given dependencies.
func NewPageHandler(as service.ArticleServicer, v *view.View, log logger.Logger) *PageHandler {
	return &PageHandler{
		articles: as,
		view:     v,
		log:      log,
		policy:   bluemonday.UGCPolicy(),
	}
}

// articleHandler reads the article id from the query string and renders it.
// Stored content is sanitized here, never on write.
func (h *PageHandler) articleHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	id := r.URL.Query().Get("id")
	if id == "" {
		return &middleware.AppError{Error: errors.New("missing article id"), Message: "Article not found", Code: http.StatusNotFound}
	}

	article, err := h.articles.GetArticle(r.Context(), id)
	if err != nil {
		if errors.Is(err, data.ErrArticleNotFound) {
			return &middleware.AppError{Error: err, Message: "Article not found", Code: http.StatusNotFound}
		}
		return &middleware.AppError{Error: err, Message: "Failed to fetch article", Code: http.StatusInternalServerError}
	}

	data := map[string]interface{}{
		"Article": article,
		"Content": template.HTML(h.policy.Sanitize(article.Content)),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.view.Render(w, "article.html", data); err != nil {
		return &middleware.AppError{Error: err, Message: "Failed to render article", Code: http.StatusInternalServerError}
	}
	return nil
}
