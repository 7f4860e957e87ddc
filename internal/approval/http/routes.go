package approvalhttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/campusflow/campusflow/internal/platform/httpx"
	"github.com/campusflow/campusflow/internal/shared"
)

// MountRoutes registers approval endpoints under the current router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Use(requireSession)
	r.Post("/", h.create)
	r.Get("/", h.listOwned)
	r.Get("/queue", h.listQueue)
	r.Get("/{id}", h.get)
	r.Get("/{id}/history", h.history)

	r.Group(func(gr chi.Router) {
		if h.limit > 0 {
			gr.Use(httprate.Limit(h.limit, time.Minute,
				httprate.WithKeyFuncs(rateLimitKey),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "slow down")
				}),
			))
		}
		gr.Post("/{id}/submit", h.transition(Service.Submit))
		gr.Post("/{id}/approve-level1", h.transition(Service.ApproveLevel1))
		gr.Post("/{id}/approve", h.transition(Service.ApproveFinal))
		gr.Post("/{id}/reject", h.reject)
		gr.Post("/{id}/resubmit", h.transition(Service.Resubmit))
		gr.Post("/{id}/cancel", h.transition(Service.Cancel))
	})
}

func requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(shared.UserIDFromContext(r.Context())) == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if user := shared.UserIDFromContext(r.Context()); user != "" {
		return "user:" + user, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
