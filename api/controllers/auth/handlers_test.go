package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stampcard-backend/api/middleware"
	"github.com/angelmondragon/stampcard-backend/internal/auth"
	"github.com/angelmondragon/stampcard-backend/internal/users"
	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stampcard-backend/pkg/errors"
)

type stubService struct {
	auth.Service
	lastRegister  auth.RegisterRequest
	lastStaffCode auth.StaffCodeRequest
	refreshArgs   [2]string
	loggedOut     string
	changedFor    uuid.UUID
	err           error
}

func (s *stubService) tokens() (*auth.TokenResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &auth.TokenResponse{
		AccessToken:  "access",
		RefreshToken: "refresh",
		User:         &users.UserDTO{ID: uuid.New(), Username: "guest", Role: enums.RoleCustomer},
	}, nil
}

func (s *stubService) Register(_ context.Context, req auth.RegisterRequest) (*auth.TokenResponse, error) {
	s.lastRegister = req
	return s.tokens()
}

func (s *stubService) Login(context.Context, auth.LoginRequest) (*auth.TokenResponse, error) {
	return s.tokens()
}

func (s *stubService) StaffLogin(context.Context, auth.LoginRequest) (*auth.TokenResponse, error) {
	return s.tokens()
}

func (s *stubService) StaffLoginWithCode(_ context.Context, req auth.StaffCodeRequest) (*auth.TokenResponse, error) {
	s.lastStaffCode = req
	return s.tokens()
}

func (s *stubService) RegisterStaff(_ context.Context, req auth.StaffCodeRequest) (*auth.TokenResponse, error) {
	s.lastStaffCode = req
	return s.tokens()
}

func (s *stubService) VerifyMasterCode(_ context.Context, code string) (*auth.VerifyCodeResponse, error) {
	if code == "555" {
		return &auth.VerifyCodeResponse{Valid: true, Type: "master"}, nil
	}
	return &auth.VerifyCodeResponse{Valid: false}, nil
}

func (s *stubService) Refresh(_ context.Context, accessToken, refreshToken string) (*auth.TokenResponse, error) {
	s.refreshArgs = [2]string{accessToken, refreshToken}
	return s.tokens()
}

func (s *stubService) Logout(_ context.Context, accessID string) error {
	s.loggedOut = accessID
	return s.err
}

func (s *stubService) ChangePassword(_ context.Context, userID uuid.UUID, _ auth.ChangePasswordRequest) error {
	s.changedFor = userID
	return s.err
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthRegisterCreated(t *testing.T) {
	svc := &stubService{}
	rec := post(AuthRegister(svc, nil), `{"username":"guest","password":"1234"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "access", rec.Header().Get(tokenHeader))
	assert.Equal(t, "guest", svc.lastRegister.Username)
	assert.Contains(t, rec.Body.String(), `"refresh_token":"refresh"`)
}

func TestAuthRegisterValidatesBody(t *testing.T) {
	cases := map[string]string{
		"short username":    `{"username":"ab","password":"1234"}`,
		"short password":    `{"username":"guest","password":"12"}`,
		"missing password":  `{"username":"guest"}`,
		"unknown field":     `{"username":"guest","password":"1234","role":"staff"}`,
		"username w/ space": `{"username":"gu est","password":"1234"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := post(AuthRegister(&stubService{}, nil), body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAuthLoginPropagatesServiceError(t *testing.T) {
	svc := &stubService{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")}
	rec := post(AuthLogin(svc, nil), `{"username":"guest","password":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBaristaLoginWithCodePassesEmployeeCode(t *testing.T) {
	svc := &stubService{}
	rec := post(BaristaLoginWithCode(svc, nil), `{"username":"barista","password":"secret","employee_code":"555"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "555", svc.lastStaffCode.EmployeeCode)
}

func TestBaristaRegisterCreated(t *testing.T) {
	rec := post(BaristaRegister(&stubService{}, nil), `{"username":"barista","password":"secret","employee_code":"555"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestBaristaVerifyCode(t *testing.T) {
	rec := post(BaristaVerifyCode(&stubService{}, nil), `{"employee_code":"555"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":true`)
	assert.Contains(t, rec.Body.String(), `"type":"master"`)

	rec = post(BaristaVerifyCode(&stubService{}, nil), `{"employee_code":"nope"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":false`)
}

func TestAuthRefreshRequiresBearer(t *testing.T) {
	svc := &stubService{}
	rec := post(AuthRefresh(svc, nil), `{"refresh_token":"r1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"refresh_token":"r1"}`))
	req.Header.Set("Authorization", "Bearer old-access")
	out := httptest.NewRecorder()
	AuthRefresh(svc, nil).ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)
	assert.Equal(t, [2]string{"old-access", "r1"}, svc.refreshArgs)
}

func TestAuthLogoutUsesAccessID(t *testing.T) {
	svc := &stubService{}
	rec := post(AuthLogout(svc, nil), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.loggedOut)
}

func TestAuthChangePasswordUsesPrincipal(t *testing.T) {
	svc := &stubService{}
	userID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"old_password":"1234","new_password":"5678"}`))
	req = req.WithContext(middleware.WithPrincipal(req.Context(), middleware.Principal{UserID: userID, Username: "guest", Role: enums.RoleCustomer}))
	rec := httptest.NewRecorder()
	AuthChangePassword(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, svc.changedFor)
}
