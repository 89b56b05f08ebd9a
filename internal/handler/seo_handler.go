package handler

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"yuanyue-cms/internal/service"
)

// SeoHandler holds dependencies for SEO-related handlers.
type SeoHandler struct {
	articles service.ArticleServicer
	baseURL  string
}

// NewSeoHandler creates a new SeoHandler. baseURL is the public origin of the site.
func NewSeoHandler(as service.ArticleServicer, baseURL string) *SeoHandler {
	return &SeoHandler{articles: as, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// robotsHandler serves robots.txt pointing crawlers at the sitemap.
func (h *SeoHandler) robotsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "User-agent: *")
	fmt.Fprintln(w, "Allow: /")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Sitemap: %s/sitemap.xml\n", h.baseURL)
}

const sitemapDateFormat = "2006-01-02"

type sitemapURL struct {
	XMLName xml.Name `xml:"url"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// sitemapHandler lists the detail page of every article.
func (h *SeoHandler) sitemapHandler(w http.ResponseWriter, r *http.Request) {
	articles, err := h.articles.ListArticles(r.Context())
	if err != nil {
		http.Error(w, "Failed to retrieve articles for sitemap", http.StatusInternalServerError)
		return
	}

	sitemap := urlSet{
		Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  make([]sitemapURL, 0, len(articles)),
	}
	for _, a := range articles {
		// Legacy values are not reachable pages until migrated.
		if service.IsLegacyDetailURL(a.DetailPageURL) {
			continue
		}
		loc := a.DetailPageURL
		switch {
		case strings.HasPrefix(loc, "/"):
			loc = h.baseURL + loc
		case strings.HasPrefix(loc, "http://"), strings.HasPrefix(loc, "https://"):
		default:
			continue
		}
		sitemap.URLs = append(sitemap.URLs, sitemapURL{
			Loc:     loc,
			LastMod: a.Date.UTC().Format(sitemapDateFormat),
		})
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xml.Header))
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(sitemap); err != nil {
		http.Error(w, "Failed to generate sitemap XML", http.StatusInternalServerError)
		return
	}
}
