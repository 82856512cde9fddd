package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// WorkspaceKey is the context key for the resolved workspace id.
const WorkspaceKey contextKey = "workspace"

// DefaultWorkspace is used when a request carries no workspace id.
// Authentication and workspace authorization happen upstream; the id is
// passed through opaquely.
const DefaultWorkspace = "default"

// WorkspaceExtractor resolves the workspace id from the X-Workspace header,
// then the workspace query parameter, falling back to DefaultWorkspace.
func WorkspaceExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		workspace := strings.TrimSpace(r.Header.Get("X-Workspace"))
		if workspace == "" {
			workspace = strings.TrimSpace(r.URL.Query().Get("workspace"))
		}
		if workspace == "" {
			workspace = DefaultWorkspace
		}

		ctx := context.WithValue(r.Context(), WorkspaceKey, workspace)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetWorkspace retrieves the workspace id from the request context.
func GetWorkspace(ctx context.Context) string {
	if v, ok := ctx.Value(WorkspaceKey).(string); ok {
		return v
	}
	return DefaultWorkspace
}
