package testutils

import (
	"context"
	"net/http"

	"pms/internal/auth"
	"pms/models"

	"github.com/go-chi/chi/v5"
)

// WithChiURLParams puts path parameters into the chi route context of req.
func WithChiURLParams(req *http.Request, params map[string]string) *http.Request {
	chiCtx := chi.NewRouteContext()
	for k, v := range params {
		chiCtx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, chiCtx))
}

// WithActor authenticates req as actor without going through a token.
func WithActor(req *http.Request, actor models.Actor) *http.Request {
	return req.WithContext(auth.WithActor(req.Context(), actor))
}
