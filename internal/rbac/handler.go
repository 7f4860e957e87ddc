package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campusflow/campusflow/internal/platform/httpx"
)

type assignmentService interface {
	Capabilities(ctx context.Context, userID string) (Capabilities, error)
	ListAssignments(ctx context.Context, by Principal, userID string) ([]RoleAssignment, error)
	Assign(ctx context.Context, by Principal, in AssignInput) (RoleAssignment, error)
	Revoke(ctx context.Context, by Principal, userID string, role Role) error
}

// Handler serves capability and role assignment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   assignmentService
	rbac      Middleware
	validator *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service assignmentService, rbac Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers RBAC routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Resolve).Get("/me/capabilities", h.capabilities)
	r.Route("/rbac", func(r chi.Router) {
		r.Use(h.rbac.Resolve)
		r.With(h.rbac.RequireAny(PermUsersView, PermUsersAssignRoles)).Get("/roles", h.listRoles)
		r.Get("/users/{userID}/assignments", h.listAssignments)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(PermUsersAssignRoles))
			r.Post("/users/{userID}/assignments", h.assign)
			r.Delete("/users/{userID}/assignments/{role}", h.revoke)
		})
	})
}

type roleView struct {
	Role        Role         `json:"role"`
	Label       string       `json:"label"`
	Permissions []Permission `json:"permissions"`
	Modules     []Module     `json:"modules"`
}

type assignRequest struct {
	Role  string  `json:"role" validate:"required"`
	Scope *string `json:"scope" validate:"omitempty,max=64"`
}

func (h *Handler) capabilities(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	caps, err := h.service.Capabilities(r.Context(), p.UserID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, caps)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles := Roles()
	out := make([]roleView, 0, len(roles))
	for _, role := range roles {
		single := []Role{role}
		out = append(out, roleView{
			Role:        role,
			Label:       role.Label(),
			Permissions: UserPermissions(single),
			Modules:     AccessibleModules(single),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	assignments, err := h.service.ListAssignments(r.Context(), p, chi.URLParam(r, "userID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if assignments == nil {
		assignments = []RoleAssignment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, known := ParseRole(req.Role)
	if !known {
		h.respondError(w, ErrUnknownRole)
		return
	}
	p, _ := PrincipalFromContext(r.Context())
	created, err := h.service.Assign(r.Context(), p, AssignInput{
		UserID:     chi.URLParam(r, "userID"),
		Role:       role,
		Scope:      req.Scope,
		AssignedBy: p.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("role assigned",
		slog.String("actor_id", p.UserID),
		slog.String("user_id", created.UserID),
		slog.String("role", string(created.Role)))
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	role := Role(strings.TrimSpace(chi.URLParam(r, "role")))
	if err := h.service.Revoke(r.Context(), p, chi.URLParam(r, "userID"), role); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		httpx.RespondError(w, httpx.Classify(httpx.ErrForbidden, err))
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.Classify(httpx.ErrNotFound, err))
	case errors.Is(err, ErrDuplicateAssignment):
		httpx.RespondError(w, httpx.Classify(httpx.ErrDuplicate, err))
	case errors.Is(err, ErrUnknownRole), errors.Is(err, ErrValidation):
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.RespondError(w, httpx.Classify(httpx.ErrUnavailable, err))
	default:
		h.logger.Error("rbac handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
