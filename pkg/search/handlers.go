package search

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/apistore/pkg/httputil"
	"github.com/platinummonkey/apistore/pkg/observability"
)

// DefaultPageSize is used when a request has no limit parameter
const DefaultPageSize = 25

// Caller headers set by the gateway in front of the store
const (
	HeaderUser  = "X-User"
	HeaderRoles = "X-Roles"
)

// SearchHandlers provides HTTP handlers for catalog search
type SearchHandlers struct {
	service         *Service
	trustRoleHeader bool
}

// HandlerOption configures SearchHandlers
type HandlerOption func(*SearchHandlers)

// WithTrustedRoleHeader makes the handlers take roles from the X-Roles header.
// Only enable it behind a gateway that strips client-supplied X-Roles; when
// disabled, roles come from the service's role resolver.
func WithTrustedRoleHeader(trust bool) HandlerOption {
	return func(h *SearchHandlers) {
		h.trustRoleHeader = trust
	}
}

// NewSearchHandlers creates new search handlers
func NewSearchHandlers(service *Service, opts ...HandlerOption) *SearchHandlers {
	h := &SearchHandlers{
		service: service,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers search routes
func (h *SearchHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/apis/search", h.search).Methods("GET")
	router.HandleFunc("/apis/search/keys", h.keys).Methods("GET")
}

// search handles GET /apis/search?query=...&type=...&scope=...&offset=...&limit=...
func (h *SearchHandlers) search(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	ctx := r.Context()
	if req.Identity != "" {
		ctx = observability.WithUserID(ctx, req.Identity)
	}

	result, err := h.service.Search(ctx, req)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr) && verr.Field != "":
			httputil.WriteDetailedError(w, http.StatusBadRequest, err, map[string]string{"field": verr.Field})
			return
		case errors.Is(err, ErrValidation):
			httputil.WriteValidationError(w, err.Error())
			return
		case errors.Is(err, context.DeadlineExceeded):
			httputil.WriteServiceUnavailable(w, "search timed out")
			return
		}
		// Builder and driver errors carry SQL details; keep them in the logs
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "search failed")
		return
	}

	httputil.WriteSuccess(w, result)
}

// keys handles GET /apis/search/keys
func (h *SearchHandlers) keys(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string][]string{
		"keys": h.service.Keys(),
	})
}

// parseRequest builds a search request from query parameters and caller headers
func (h *SearchHandlers) parseRequest(r *http.Request) (Request, error) {
	var searchType SearchType
	if raw := httputil.ParseQueryString(r, "type", ""); raw != "" {
		t, err := ParseSearchType(raw)
		if err != nil {
			return Request{}, err
		}
		searchType = t
	}

	req, err := ParseSearchContent(httputil.ParseQueryString(r, "query", ""), searchType)
	if err != nil {
		return Request{}, err
	}

	if req.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		return Request{}, err
	}
	if req.Limit, err = httputil.ParseQueryInt(r, "limit", DefaultPageSize); err != nil {
		return Request{}, err
	}

	if req.Scope, err = ParseScope(httputil.ParseQueryString(r, "scope", "")); err != nil {
		return Request{}, err
	}

	req.APIType = APIType(strings.ToUpper(httputil.ParseQueryString(r, "api_type", "")))
	req.Identity = strings.TrimSpace(r.Header.Get(HeaderUser))
	if h.trustRoleHeader {
		req.Roles = httputil.ParseHeaderList(r, HeaderRoles)
	}

	return req, nil
}
