package handlers

import (
	"net/http"
	"strconv"

	"github.com/mercatohq/bastion/internal/security"
	pkghttp "github.com/mercatohq/bastion/pkg/http"
)

// respondClassified maps a core failure onto the closed error taxonomy and
// writes it. Rate-limited responses also carry a Retry-After header.
func respondClassified(w http.ResponseWriter, err error) {
	classified := security.Classify(err)

	if details, ok := classified.Details.(security.RateLimitDetails); ok {
		w.Header().Set("Retry-After", strconv.Itoa(details.RetryAfterSeconds))
	}

	pkghttp.WriteErrorWithDetails(w, classified.HTTPStatus(), string(classified.Code), classified.Message, classified.Details)
}
