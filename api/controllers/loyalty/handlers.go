// Package loyalty exposes the stamp card operations over HTTP.
package loyalty

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/stampcard-backend/api/middleware"
	"github.com/angelmondragon/stampcard-backend/api/responses"
	"github.com/angelmondragon/stampcard-backend/api/validators"
	"github.com/angelmondragon/stampcard-backend/internal/loyalty"
	"github.com/angelmondragon/stampcard-backend/pkg/db/models"
	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stampcard-backend/pkg/errors"
	"github.com/angelmondragon/stampcard-backend/pkg/logger"
	"github.com/angelmondragon/stampcard-backend/pkg/pagination"
)

// UserResolver maps a username to a user record.
type UserResolver interface {
	ResolveUsername(ctx context.Context, username string) (*models.User, error)
}

type codeRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

type addStampsRequest struct {
	Username string `json:"username" validate:"required"`
	Amount   *int   `json:"amount,omitempty"`
}

type resetRequest struct {
	Username string `json:"username"`
}

type redeemResponse struct {
	Detail    string `json:"detail"`
	Stamps    int    `json:"stamps"`
	MaxStamps int    `json:"max_stamps"`
	Client    string `json:"client"`
}

type checkResponse struct {
	Detail    string `json:"detail"`
	Code      string `json:"code"`
	Activated bool   `json:"activated"`
}

type addStampsResponse struct {
	Username    string `json:"username"`
	StampsAdded int    `json:"stamps_added"`
	StampsTotal int    `json:"stamps_total"`
	MaxStamps   int    `json:"max_stamps"`
}

type resetResponse struct {
	Detail    string `json:"detail"`
	Previous  int    `json:"previous"`
	Stamps    int    `json:"stamps"`
	MaxStamps int    `json:"max_stamps"`
}

type statusResponse struct {
	Username  string `json:"username"`
	Stamps    int    `json:"stamps"`
	MaxStamps int    `json:"max_stamps"`
}

type historyResponse struct {
	Username   string               `json:"username"`
	Items      []loyalty.StampEntry `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// IssueCode mints a one-time code for the caller.
func IssueCode(svc loyalty.Issuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "code issuer unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		issued, err := svc.Issue(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, issued)
	}
}

// Redeem consumes a code and credits one stamp to its owner.
func Redeem(svc loyalty.Redemption, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "redemption unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body codeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Redeem(r.Context(), actor, body.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, redeemResponse{
			Detail:    "stamp credited",
			Stamps:    result.Stamps,
			MaxStamps: result.MaxStamps,
			Client:    result.OwnerUsername,
		})
	}
}

// Check activates a code without crediting a stamp.
func Check(svc loyalty.Redemption, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "redemption unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body codeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Activate(r.Context(), actor, body.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, checkResponse{
			Detail:    "code is valid and activated",
			Code:      result.Code,
			Activated: true,
		})
	}
}

// AddStamps credits stamps to a customer by username. Amount defaults to 1.
func AddStamps(svc loyalty.Ledger, users UserResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || users == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loyalty ledger unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body addStampsRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount := 1
		if body.Amount != nil {
			amount = *body.Amount
		}

		target, err := users.ResolveUsername(r.Context(), body.Username)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AddStamps(r.Context(), loyalty.AddStampsInput{
			Actor:  actor,
			UserID: target.ID,
			Count:  amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, addStampsResponse{
			Username:    target.Username,
			StampsAdded: result.Applied,
			StampsTotal: result.StampsTotal,
			MaxStamps:   result.MaxStamps,
		})
	}
}

// Reset zeroes the caller's counter, or another user's when a username is given.
func Reset(svc loyalty.Ledger, users UserResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || users == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loyalty ledger unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body resetRequest
		if err := decodeOptionalBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		targetID, _, err := resolveTarget(r.Context(), users, actor, body.Username, enums.CapResetAnyProfile)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Reset(r.Context(), actor, targetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resetResponse{
			Detail:    fmt.Sprintf("counter reset (was %d)", result.Previous),
			Previous:  result.Previous,
			Stamps:    result.Stamps,
			MaxStamps: result.MaxStamps,
		})
	}
}

// Status returns the stamp counter for the caller or ?username=.
func Status(svc loyalty.Ledger, users UserResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || users == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loyalty ledger unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		targetID, username, err := resolveTarget(r.Context(), users, actor, r.URL.Query().Get("username"), enums.CapViewAnyStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.Status(r.Context(), actor, targetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statusResponse{
			Username:  username,
			Stamps:    status.Stamps,
			MaxStamps: status.MaxStamps,
		})
	}
}

// History pages through stamp audit rows, newest first.
func History(svc loyalty.Ledger, users UserResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || users == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loyalty ledger unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := r.URL.Query()
		targetID, username, err := resolveTarget(r.Context(), users, actor, query.Get("username"), enums.CapViewAnyStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.History(r.Context(), actor, targetID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(query.Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, historyResponse{
			Username:   username,
			Items:      page.Items,
			NextCursor: page.NextCursor,
		})
	}
}

func actorFromRequest(r *http.Request) (loyalty.Actor, error) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return loyalty.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return loyalty.Actor{
		UserID:   principal.UserID,
		Username: principal.Username,
		Role:     principal.Role,
	}, nil
}

// resolveTarget returns the caller when username is blank or names the caller.
// Callers without capability are refused before the lookup so a 404 never
// reveals which usernames exist.
func resolveTarget(ctx context.Context, users UserResolver, actor loyalty.Actor, username string, capability enums.Capability) (uuid.UUID, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.EqualFold(username, actor.Username) {
		return actor.UserID, actor.Username, nil
	}
	if !actor.Role.Can(capability) {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeForbidden, loyalty.ErrPermissionDenied, "access limited to your own profile")
	}
	user, err := users.ResolveUsername(ctx, username)
	if err != nil {
		return uuid.Nil, "", err
	}
	return user.ID, user.Username, nil
}

func decodeOptionalBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return validators.DecodeJSONBody(r, dest)
}
