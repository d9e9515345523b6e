package http

import (
	"net/http"

	"github.com/go-chi/render"

	apierrors "tremor/internal/errors"
)

// respondError maps any error to its API representation and renders it.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierrors.FromError(err)
	_ = render.Render(w, r, apierrors.NewErrorResponse(apiErr))
}
