package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

func newRouter(claims *models.JWTClaims, chain ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{JWT(stubValidator{claims: claims})}, chain...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/protected", handlers...)
	return r
}

func perform(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWT(t *testing.T) {
	r := newRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleStudent, StudentID: "S1"})

	assert.Equal(t, http.StatusUnauthorized, perform(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, "Token good").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, "Bearer bad").Code)
	assert.Equal(t, http.StatusOK, perform(r, "Bearer good").Code)
}

func TestRequireStudent(t *testing.T) {
	admin := newRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}, RequireStudent())
	assert.Equal(t, http.StatusForbidden, perform(admin, "Bearer good").Code)

	student := newRouter(&models.JWTClaims{UserID: "u2", Role: models.RoleStudent, StudentID: "S1"}, RequireStudent())
	assert.Equal(t, http.StatusOK, perform(student, "Bearer good").Code)
}

func TestRBAC(t *testing.T) {
	student := newRouter(&models.JWTClaims{UserID: "u2", Role: models.RoleStudent, StudentID: "S1"}, RBAC(models.RoleAdmin))
	rec := perform(student, "Bearer good")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), appErrors.ErrPermissionDenied.Code)

	admin := newRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}, RBAC(models.RoleAdmin))
	assert.Equal(t, http.StatusOK, perform(admin, "Bearer good").Code)
}

func TestResponseMetaRecordsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var meta map[string]interface{}
	r.Use(WithResponseMeta())
	r.GET("/courses", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/courses", nil))

	assert.Equal(t, true, meta["cache_hit"])
}

type captureRecorder struct {
	entries []models.AuditLog
}

func (r *captureRecorder) Record(entry models.AuditLog) {
	r.entries = append(r.entries, entry)
}

func TestAuditRecordsOnlySuccess(t *testing.T) {
	recorder := &captureRecorder{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/enrollments/me/export", Audit(recorder, models.AuditActionExport, "enrollment_export"), func(c *gin.Context) {
		if c.Query("format") == "xml" {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Set(AuditResourceIDKey, "S1")
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/enrollments/me/export?format=csv", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/enrollments/me/export?format=xml", nil))

	if assert.Len(t, recorder.entries, 1) {
		entry := recorder.entries[0]
		assert.Equal(t, models.AuditActionExport, entry.Action)
		if assert.NotNil(t, entry.ResourceID) {
			assert.Equal(t, "S1", *entry.ResourceID)
		}
		assert.Contains(t, string(entry.NewValues), `"status":200`)
	}
}
