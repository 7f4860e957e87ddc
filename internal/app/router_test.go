package app_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/campusflow/campusflow/internal/app"
	"github.com/campusflow/campusflow/internal/approval"
	approvalhttp "github.com/campusflow/campusflow/internal/approval/http"
	"github.com/campusflow/campusflow/internal/auth"
	"github.com/campusflow/campusflow/internal/observability"
	"github.com/campusflow/campusflow/internal/rbac"
	"github.com/campusflow/campusflow/internal/shared"
	_ "github.com/campusflow/campusflow/testing"
)

func newTestApp(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test-secret", time.Hour)

	hash, err := auth.HashPassword("studentpass")
	require.NoError(t, err)
	users := auth.NewMemoryRepository(
		auth.User{ID: "student1", Email: "student@school.test", PasswordHash: hash, IsActive: true},
		auth.User{ID: "ct1", Email: "ct@school.test", PasswordHash: hash, IsActive: true},
	)

	roles := rbac.NewService(rbac.NewMemoryRepository(
		rbac.RoleAssignment{UserID: "student1", Role: rbac.RoleStudent, IsActive: true},
		rbac.RoleAssignment{UserID: "ct1", Role: rbac.RoleClassTeacher, IsActive: true},
	), nil)
	metrics := observability.NewMetrics()
	approvals := approval.NewService(approval.NewMemoryRepository(), roles, nil, approval.ServiceConfig{RepositoryTimeout: time.Second}, nil)
	approvals.SetMetrics(metrics)

	cfg := &app.Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, RateLimitPerMinute: 1000}
	return app.NewRouter(app.RouterParams{
		Config:          cfg,
		SessionManager:  sessions,
		AuthHandler:     auth.NewHandler(nil, auth.NewService(users, sessions)),
		RBACHandler:     rbac.NewHandler(nil, roles, rbac.Middleware{Service: roles}),
		ApprovalHandler: approvalhttp.NewHandler(nil, approvals, 0),
		Metrics:         metrics,
	})
}

func send(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func login(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	res := send(t, h, http.MethodPost, "/auth/login", "", `{"email":"`+email+`","password":"studentpass"}`)
	require.Equal(t, http.StatusOK, res.Code)
	var out auth.LoginResult
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	return out.Token
}

func TestLeaveApprovalThroughRouter(t *testing.T) {
	router := newTestApp(t)

	res := send(t, router, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"))

	res = send(t, router, http.MethodPost, "/approvals", "", `{"kind":"leave_application"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = send(t, router, http.MethodGet, "/me/capabilities", "not-a-token", "")
	require.Equal(t, http.StatusUnauthorized, res.Code)

	student := login(t, router, "student@school.test")
	teacher := login(t, router, "ct@school.test")

	res = send(t, router, http.MethodPost, "/approvals", student, `{"kind":"leave_application","payload":{"days":1}}`)
	require.Equal(t, http.StatusCreated, res.Code)
	var leave approval.Subject
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &leave))
	require.Equal(t, approval.StatusSubmitted, leave.Status)

	res = send(t, router, http.MethodPost, "/approvals/"+leave.ID+"/approve", student, "")
	require.Equal(t, http.StatusForbidden, res.Code)

	res = send(t, router, http.MethodPost, "/approvals/"+leave.ID+"/approve", teacher, "")
	require.Equal(t, http.StatusOK, res.Code)

	res = send(t, router, http.MethodPost, "/approvals/"+leave.ID+"/cancel", student, "")
	require.Equal(t, http.StatusConflict, res.Code)

	res = send(t, router, http.MethodGet, "/me/capabilities", teacher, "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), string(rbac.PermDecideLeave))

	res = send(t, router, http.MethodPost, "/auth/logout", student, "")
	require.Equal(t, http.StatusNoContent, res.Code)
	res = send(t, router, http.MethodGet, "/approvals", student, "")
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = send(t, router, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	require.Contains(t, body, `campusflow_approval_transitions_total{kind="leave_application",op="approve_final",outcome="ok"} 1`)
	require.Contains(t, body, "campusflow_http_requests_total")
}
