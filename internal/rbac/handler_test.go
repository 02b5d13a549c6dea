package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(svc *Service) http.Handler {
	handler := NewHandler(nil, svc, nil, Middleware{Service: svc})
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func withSession(t *testing.T, req *http.Request, userID string) *http.Request {
	t.Helper()
	seed := requestWithUser(t, userID)
	return req.WithContext(seed.Context())
}

func TestRoleEndpointsRequireManagePermission(t *testing.T) {
	svc := NewService(newMockStore())
	router := newTestRouter(svc)

	body := strings.NewReader(`{"name":"analyst"}`)
	req := withSession(t, httptest.NewRequest(http.MethodPost, "/roles", body), "1")
	res := doJSON(t, router, req)
	assert.Equal(t, http.StatusForbidden, res.Code)

	grantPermission(t, svc, 1, ActionManage, ResourceRole)

	body = strings.NewReader(`{"name":"analyst","display_name":"Analyst"}`)
	req = withSession(t, httptest.NewRequest(http.MethodPost, "/roles", body), "1")
	res = doJSON(t, router, req)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	var created Role
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	assert.Equal(t, "analyst", created.Name)
	assert.Equal(t, "Analyst", created.DisplayName)
}

func TestCreatePermissionRejectsUnknownEnum(t *testing.T) {
	svc := NewService(newMockStore())
	grantPermission(t, svc, 1, ActionManage, ResourcePermission)
	router := newTestRouter(svc)

	body := strings.NewReader(`{"action":"DESTROY","resource":"TRADE"}`)
	req := withSession(t, httptest.NewRequest(http.MethodPost, "/permissions", body), "1")
	res := doJSON(t, router, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestDuplicatePermissionIsConflict(t *testing.T) {
	svc := NewService(newMockStore())
	grantPermission(t, svc, 1, ActionManage, ResourcePermission)
	router := newTestRouter(svc)

	payload := `{"action":"READ","resource":"TRADE"}`
	req := withSession(t, httptest.NewRequest(http.MethodPost, "/permissions", strings.NewReader(payload)), "1")
	require.Equal(t, http.StatusCreated, doJSON(t, router, req).Code)

	req = withSession(t, httptest.NewRequest(http.MethodPost, "/permissions", strings.NewReader(payload)), "1")
	res := doJSON(t, router, req)
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestDeleteRoleInUseReturnsConflict(t *testing.T) {
	svc := NewService(newMockStore())
	grantPermission(t, svc, 1, ActionManage, ResourceRole)
	router := newTestRouter(svc)

	ctx := context.Background()
	role, err := svc.CreateRole(ctx, CreateRoleParams{Name: "sticky"})
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, 2, role.ID, nil, nil)
	require.NoError(t, err)

	req := withSession(t, httptest.NewRequest(http.MethodDelete, "/roles/"+strconv.FormatInt(role.ID, 10), nil), "1")
	res := doJSON(t, router, req)
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestOwnContextEndpoint(t *testing.T) {
	svc := NewService(newMockStore())
	grantPermission(t, svc, 5, ActionRead, ResourceDashboard)
	router := newTestRouter(svc)

	// Anonymous callers get 401.
	res := doJSON(t, router, httptest.NewRequest(http.MethodGet, "/me/rbac-context", nil))
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	req := withSession(t, httptest.NewRequest(http.MethodGet, "/me/rbac-context", nil), "5")
	res = doJSON(t, router, req)
	require.Equal(t, http.StatusOK, res.Code)

	var rc Context
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &rc))
	assert.Equal(t, int64(5), rc.UserID)
	require.Len(t, rc.Permissions, 1)
	assert.Equal(t, ActionRead, rc.Permissions[0].Action)
	assert.Equal(t, ResourceDashboard, rc.Permissions[0].Resource)
}

