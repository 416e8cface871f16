package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"ewintr.nl/vidqa/page"
)

// ProxyAPI serves sanitized copies of third-party pages for citation previews.
type ProxyAPI struct {
	pages  *page.Fetcher
	logger *slog.Logger
}

func NewProxyAPI(pages *page.Fetcher, logger *slog.Logger) *ProxyAPI {
	return &ProxyAPI{
		pages:  pages,
		logger: logger,
	}
}

func (p *ProxyAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	head, tail := ShiftPath(r.URL.Path)

	switch {
	case r.Method == http.MethodGet && head == "page" && tail == "/":
		p.Page(w, r)
	default:
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the proxy api", r.Method, r.URL.Path))
	}
}

func (p *ProxyAPI) Page(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	format, err := page.ParseFormat(query.Get("format"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid format", err)
		return
	}
	target := query.Get("url")
	if target == "" {
		Error(w, http.StatusBadRequest, "url is required", page.ErrInvalidURL)
		return
	}

	pg, err := p.pages.Fetch(r.Context(), target, format)
	var statusErr *page.StatusError
	switch {
	case errors.Is(err, page.ErrInvalidURL):
		Error(w, http.StatusBadRequest, "invalid url", err, target)
	case errors.Is(err, page.ErrBlockedHost):
		Error(w, http.StatusForbidden, "address not allowed", err, target)
	case errors.As(err, &statusErr):
		Error(w, statusErr.Code, "upstream error", err, target)
	case err != nil:
		returnErr(p.logger, w, http.StatusBadGateway, "could not fetch page", err, target)
	default:
		JSON(w, http.StatusOK, pg)
	}
}
