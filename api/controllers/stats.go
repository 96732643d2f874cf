package controllers

import (
	"net/http"

	"github.com/angelmondragon/stampcard-backend/api/middleware"
	"github.com/angelmondragon/stampcard-backend/api/responses"
	"github.com/angelmondragon/stampcard-backend/internal/stats"
	pkgerrors "github.com/angelmondragon/stampcard-backend/pkg/errors"
	"github.com/angelmondragon/stampcard-backend/pkg/logger"
)

// BaristaStats reports activation and stamp counters for ?scope=me|all.
func BaristaStats(svc stats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stats service unavailable"))
			return
		}
		principal, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		scope, err := stats.ParseScope(r.URL.Query().Get("scope"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "scope must be me or all").
				WithDetails(map[string]any{"field": "scope"}))
			return
		}

		summary, err := svc.Summary(r.Context(), stats.Query{
			ActorID:   principal.UserID,
			ActorRole: principal.Role,
			Scope:     scope,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
