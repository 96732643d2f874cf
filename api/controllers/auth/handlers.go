package auth

import (
	"context"
	"net/http"

	"github.com/angelmondragon/stampcard-backend/api/middleware"
	"github.com/angelmondragon/stampcard-backend/api/responses"
	"github.com/angelmondragon/stampcard-backend/api/validators"
	"github.com/angelmondragon/stampcard-backend/internal/auth"
	pkgerrors "github.com/angelmondragon/stampcard-backend/pkg/errors"
	"github.com/angelmondragon/stampcard-backend/pkg/logger"
)

const tokenHeader = "X-SC-Token"

// AuthRegister creates a customer account and signs it in.
func AuthRegister(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return credentialHandler(svc, logg, http.StatusCreated, func(ctx context.Context, body auth.RegisterRequest) (*auth.TokenResponse, error) {
		return svc.Register(ctx, body)
	})
}

// AuthLogin signs in any account.
func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return credentialHandler(svc, logg, http.StatusOK, func(ctx context.Context, body auth.LoginRequest) (*auth.TokenResponse, error) {
		return svc.Login(ctx, body)
	})
}

// BaristaLogin signs in staff only.
func BaristaLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return credentialHandler(svc, logg, http.StatusOK, func(ctx context.Context, body auth.LoginRequest) (*auth.TokenResponse, error) {
		return svc.StaffLogin(ctx, body)
	})
}

// BaristaLoginWithCode signs in with an employee master code, promoting the account to staff.
func BaristaLoginWithCode(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return credentialHandler(svc, logg, http.StatusOK, func(ctx context.Context, body auth.StaffCodeRequest) (*auth.TokenResponse, error) {
		return svc.StaffLoginWithCode(ctx, body)
	})
}

// BaristaRegister creates a staff account gated by an employee master code.
func BaristaRegister(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return credentialHandler(svc, logg, http.StatusCreated, func(ctx context.Context, body auth.StaffCodeRequest) (*auth.TokenResponse, error) {
		return svc.RegisterStaff(ctx, body)
	})
}

// BaristaVerifyCode reports whether an employee master code is valid.
func BaristaVerifyCode(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.VerifyCodeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.VerifyMasterCode(r.Context(), body.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AuthRefresh rotates the refresh token. The presented access token may be expired.
func AuthRefresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.RefreshRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token := middleware.BearerToken(r)
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		result, err := svc.Refresh(r.Context(), token, body.RefreshToken)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set(tokenHeader, result.AccessToken)
		responses.WriteSuccess(w, result)
	}
}

// AuthLogout revokes the session behind the presented access token.
func AuthLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		accessID := middleware.AccessIDFromContext(r.Context())
		if accessID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
			return
		}

		if err := svc.Logout(r.Context(), accessID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}

// AuthChangePassword verifies the old password and stores the new one.
func AuthChangePassword(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		principal, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var body auth.ChangePasswordRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ChangePassword(r.Context(), principal.UserID, body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"detail": "password changed"})
	}
}

func credentialHandler[T any](svc auth.Service, logg *logger.Logger, status int, call func(context.Context, T) (*auth.TokenResponse, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body T
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := call(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set(tokenHeader, result.AccessToken)
		responses.WriteSuccessStatus(w, status, result)
	}
}
