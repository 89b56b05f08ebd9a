package handler

import (
	"strings"
	"yuanyue-cms/internal/logger"
	"yuanyue-cms/internal/middleware"
	"yuanyue-cms/internal/view"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes bundles the handlers and route settings the router is built from.
// Uploads may be nil when images live in a bucket that serves them itself.
type Routes struct {
	Articles *ArticleHandler
	Pages    *PageHandler
	SEO      *SeoHandler
	Uploads  *UploadHandler
	Health   *HealthHandler

	View           *view.View
	Log            logger.Logger
	AllowedOrigins []string
	DetailRoute    string
	UploadPrefix   string
}

// NewRouter creates and configures a new chi router.
func NewRouter(rt Routes) *chi.Mux {
	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(rt.AllowedOrigins))

	api := middleware.Error(rt.Log)
	page := middleware.ErrorPage(rt.Log, rt.View)

	r.Route("/api", func(r chi.Router) {
		r.Get("/articles", api(rt.Articles.listHandler).ServeHTTP)
		// Registered before /{id} so "latest" is never taken as an id.
		r.Get("/articles/latest", api(rt.Articles.latestHandler).ServeHTTP)
		r.Get("/articles/{id}", api(rt.Articles.getHandler).ServeHTTP)
		r.Post("/articles", api(rt.Articles.createHandler).ServeHTTP)
		r.Put("/articles/{id}", api(rt.Articles.updateHandler).ServeHTTP)
		r.Delete("/articles/{id}", api(rt.Articles.deleteHandler).ServeHTTP)
		r.Post("/migrate-to-dynamic-urls", api(rt.Articles.migrateHandler).ServeHTTP)
	})

	r.Get(rt.DetailRoute, page(rt.Pages.articleHandler).ServeHTTP)

	if rt.Uploads != nil {
		r.Get(strings.TrimSuffix(rt.UploadPrefix, "/")+"/{name}", rt.Uploads.serveHandler)
	}

	r.Get("/robots.txt", rt.SEO.robotsHandler)
	r.Get("/sitemap.xml", rt.SEO.sitemapHandler)
	r.Get("/healthz", rt.Health.healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
