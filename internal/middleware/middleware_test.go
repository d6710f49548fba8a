package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
	err    error
	token  string
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	v.token = token
	return v.claims, v.err
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/things/:id", handlers...)
	return r
}

func perform(r http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	stub := &validatorStub{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}}
	r := newRouter(JWT(stub))

	assert.Equal(t, http.StatusUnauthorized, perform(r, "/things/1", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, "/things/1", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, "/things/1", "Bearer ").Code)

	w := perform(r, "/things/1", "bearer tok")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok", stub.token)

	stub.err = appErrors.Clone(appErrors.ErrUnauthorized, "expired")
	w = perform(r, "/things/1", "Bearer tok")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "UNAUTHORIZED", body["error"]["code"])
}

func withClaims(claims *models.JWTClaims) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}
}

func TestRBACMiddleware(t *testing.T) {
	cases := []struct {
		name   string
		claims *models.JWTClaims
		path   string
		want   int
	}{
		{"no claims", nil, "/things/u1", http.StatusUnauthorized},
		{"allowed role", &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin}, "/things/u1", http.StatusOK},
		{"self", &models.JWTClaims{UserID: "u1", Role: models.RoleTeacher}, "/things/u1", http.StatusOK},
		{"self via subject", &models.JWTClaims{Role: models.RoleTeacher, RegisteredClaims: jwtSubject("u1")}, "/things/u1", http.StatusOK},
		{"other user", &models.JWTClaims{UserID: "u2", Role: models.RoleTeacher}, "/things/u1", http.StatusForbidden},
	}
	for _, tc := range cases {
		r := newRouter(withClaims(tc.claims), RBAC(string(models.RoleAdmin), SelfParam))
		assert.Equal(t, tc.want, perform(r, tc.path, "").Code, tc.name)
	}

	r := newRouter(withClaims(&models.JWTClaims{UserID: "s1", Role: models.RoleStudent}), RequireRoles(models.RoleTeacher))
	assert.Equal(t, http.StatusForbidden, perform(r, "/things/s1", "").Code)
}

type auditStub struct {
	logs []*models.AuditLog
	err  error
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return a.err
}

func TestAuditMiddleware(t *testing.T) {
	recorder := &auditStub{}
	r := newRouter(withClaims(&models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}), Audit(recorder, nil, models.AuditActionCourseChange, "course"))

	require.Equal(t, http.StatusOK, perform(r, "/things/c1", "").Code)
	require.Len(t, recorder.logs, 1)
	entry := recorder.logs[0]
	assert.Equal(t, "t1", *entry.UserID)
	assert.Equal(t, "c1", *entry.ResourceID)
	assert.Equal(t, "course", entry.Resource)
	assert.Contains(t, string(entry.NewValues), `"path":"/things/:id"`)

	recorder.err = errors.New("db down")
	assert.Equal(t, http.StatusOK, perform(r, "/things/c1", "").Code)
}

func TestAuditSkipsFailedRequests(t *testing.T) {
	recorder := &auditStub{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/fail", Audit(recorder, nil, "X", "x"), func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	perform(r, "/fail", "")
	assert.Empty(t, recorder.logs)
}

type observerStub struct {
	method, path string
	status       int
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.method, o.path, o.status = method, path, status
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	obs := &observerStub{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(obs))
	r.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	perform(r, "/things/42", "")
	assert.Equal(t, "GET", obs.method)
	assert.Equal(t, "/things/:id", obs.path)
	assert.Equal(t, http.StatusAccepted, obs.status)

	perform(r, "/nowhere", "")
	assert.Equal(t, "unmatched", obs.path)
	assert.Equal(t, http.StatusNotFound, obs.status)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/meta", func(c *gin.Context) {
		SetCacheHit(c, true)
		c.JSON(http.StatusOK, ResponseMeta(c))
	})

	w := perform(r, "/meta", "")
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
}

func jwtSubject(sub string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: sub}
}
