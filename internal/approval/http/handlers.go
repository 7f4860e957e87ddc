package approvalhttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campusflow/campusflow/internal/approval"
	"github.com/campusflow/campusflow/internal/platform/httpx"
	"github.com/campusflow/campusflow/internal/shared"
)

// Service captures the approval operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, actorID string, in approval.CreateInput) (approval.Subject, error)
	Submit(ctx context.Context, actorID, subjectID string) (approval.Subject, error)
	ApproveLevel1(ctx context.Context, actorID, subjectID string) (approval.Subject, error)
	ApproveFinal(ctx context.Context, actorID, subjectID string) (approval.Subject, error)
	Reject(ctx context.Context, actorID, subjectID, reason string) (approval.Subject, error)
	Resubmit(ctx context.Context, actorID, subjectID string) (approval.Subject, error)
	Cancel(ctx context.Context, actorID, subjectID string) (approval.Subject, error)
	Get(ctx context.Context, actorID, subjectID string) (approval.Subject, error)
	ListOwned(ctx context.Context, actorID string, kind approval.Kind) ([]approval.Subject, error)
	ListQueue(ctx context.Context, actorID string, kind approval.Kind) ([]approval.Subject, error)
	History(ctx context.Context, actorID, subjectID string) ([]shared.ApprovalLog, error)
}

// Handler serves approval endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	validator *validator.Validate
	limit     int
}

// NewHandler builds the approval HTTP handler. limit caps transition requests
// per user per minute; zero disables the cap.
func NewHandler(logger *slog.Logger, service Service, limit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New(), limit: limit}
}

type createRequest struct {
	Kind    string          `json:"kind" validate:"required"`
	Payload json.RawMessage `json:"payload"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	subject, err := h.service.Create(r.Context(), actorID(r), approval.CreateInput{
		Kind:    approval.Kind(strings.TrimSpace(req.Kind)),
		Payload: req.Payload,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, subject)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	subject, err := h.service.Get(r.Context(), actorID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, subject)
}

func (h *Handler) listOwned(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	subjects, err := h.service.ListOwned(r.Context(), actorID(r), kind)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"subjects": nonNil(subjects)})
}

func (h *Handler) listQueue(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	subjects, err := h.service.ListQueue(r.Context(), actorID(r), kind)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"subjects": nonNil(subjects)})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.History(r.Context(), actorID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": logs})
}

type transitionCall func(svc Service, ctx context.Context, actorID, subjectID string) (approval.Subject, error)

func (h *Handler) transition(call transitionCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject, err := call(h.service, r.Context(), actorID(r), chi.URLParam(r, "id"))
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, subject)
	}
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	subject, err := h.service.Reject(r.Context(), actorID(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, subject)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, approval.ErrUnauthorized):
		httpx.RespondError(w, httpx.Classify(httpx.ErrForbidden, err))
	case errors.Is(err, approval.ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, approval.ErrConflict):
		httpx.RespondError(w, httpx.Classify(httpx.ErrConflict, err))
	case errors.Is(err, approval.ErrMissingReason):
		httpx.RespondError(w, httpx.Classify(httpx.ErrUnprocessable, err))
	case errors.Is(err, approval.ErrNotFound):
		httpx.RespondError(w, httpx.Classify(httpx.ErrNotFound, err))
	case errors.Is(err, approval.ErrUnknownKind):
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
	case errors.Is(err, approval.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("approval unavailable", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, httpx.Classify(httpx.ErrUnavailable, err))
	default:
		h.logger.Error("approval handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func actorID(r *http.Request) string {
	return shared.UserIDFromContext(r.Context())
}

func kindParam(r *http.Request) (approval.Kind, error) {
	kind := approval.Kind(strings.TrimSpace(r.URL.Query().Get("kind")))
	if kind == "" {
		return "", nil
	}
	if _, ok := approval.ChainFor(kind); !ok {
		return "", approval.ErrUnknownKind
	}
	return kind, nil
}

func nonNil(subjects []approval.Subject) []approval.Subject {
	if subjects == nil {
		return []approval.Subject{}
	}
	return subjects
}
