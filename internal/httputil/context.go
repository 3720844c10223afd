package httputil

import (
	"context"
	"net/http"
)

type userIDKey struct{}

// WithUserID stores the authenticated subject on the request
func WithUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID))
}

// GetUserID returns the authenticated subject, or "" on unauthenticated routes
func GetUserID(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey{}).(string)
	return userID
}
