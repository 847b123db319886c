// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteValidationError(w, "limit must be positive")
//	httputil.WriteInternalError(w)
//
// # Request Parsing
//
//	limit, err := httputil.ParseQueryInt(r, "limit", 25)
//	query := httputil.ParseQueryString(r, "query", "")
//	roles := httputil.ParseHeaderList(r, "X-Roles")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)(router)
//
// RequestIDMiddleware must run first: it stores the request ID and logger in the
// request context that the other middleware log through.
package httputil
