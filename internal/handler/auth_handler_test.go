package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enrollment-api/internal/middleware"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type authServiceMock struct {
	registerErr error
	loginErr    error
	gotLogin    models.LoginRequest
}

func (m *authServiceMock) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	return &models.RegisterResponse{UserID: "u-1", StudentID: req.StudentID}, nil
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.gotLogin = req
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return &models.LoginResponse{AccessToken: "token", User: models.UserInfo{ID: "u-1", Email: req.Email}}, nil
}

func TestAuthHandlerRegister(t *testing.T) {
	svc := &authServiceMock{}
	handler := NewAuthHandler(svc)
	body, _ := json.Marshal(models.RegisterRequest{StudentID: "S1", FullName: "Ana", Email: "ana@example.com", Password: "secret1"})

	c, w := newCatalogContext(http.MethodPost, "/auth/register", body)
	handler.Register(c)
	require.Equal(t, http.StatusCreated, w.Code)

	svc.registerErr = appErrors.Clone(appErrors.ErrConflict, "email already registered")
	c, w = newCatalogContext(http.MethodPost, "/auth/register", body)
	handler.Register(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAuthHandlerLogin(t *testing.T) {
	svc := &authServiceMock{}
	handler := NewAuthHandler(svc)
	body, _ := json.Marshal(models.LoginRequest{Email: "ana@example.com", Password: "secret1"})

	c, w := newCatalogContext(http.MethodPost, "/auth/login", body)
	c.Request.Header.Set("User-Agent", "test-agent")
	handler.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test-agent", svc.gotLogin.UserAgent)

	svc.loginErr = appErrors.ErrInvalidCredentials
	c, w = newCatalogContext(http.MethodPost, "/auth/login", body)
	handler.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newCatalogContext(http.MethodPost, "/auth/login", []byte(`nope`))
	handler.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	handler := NewAuthHandler(&authServiceMock{})

	c, w := newCatalogContext(http.MethodGet, "/auth/me", nil)
	handler.Me(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newCatalogContext(http.MethodGet, "/auth/me", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Email: "ana@example.com", Role: models.RoleStudent, StudentID: "S1"})
	handler.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	var info models.UserInfo
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &info))
	assert.Equal(t, "S1", info.StudentID)
}
