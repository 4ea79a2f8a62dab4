// Package middleware provides HTTP middleware for the Verdant API.
package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/logger"
)

const headerRequestID = "X-Request-ID"

// Inbound ids are echoed into logs and headers, so only a conservative
// charset is accepted.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// RequestID takes X-Request-ID from the request or generates one, stores it
// in the context and sets it on the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
