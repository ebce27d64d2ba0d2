package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"chamba/internal/store"

	"github.com/go-chi/chi/v5"
)

type profileEnvelope struct {
	Success    bool                   `json:"success"`
	Message    string                 `json:"message"`
	User       *store.User            `json:"user"`
	Reputation *store.AggregateRecord `json:"reputation"`
}

// getWorkerProfileHandler godoc
//
//	@Summary		Worker profile with reputation
//	@Description	Returns the worker together with the current reputation snapshot (average rating and contributing review ids). The snapshot is read-only.
//	@Tags			profiles
//	@Produce		json
//	@Param			workerID	path		int	true	"Worker ID"
//	@Success		200			{object}	profileEnvelope
//	@Failure		404			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/profile/worker/{workerID} [get]
func (app *application) getWorkerProfileHandler(w http.ResponseWriter, r *http.Request) {
	app.getProfile(w, r, chi.URLParam(r, "workerID"), store.RoleWorker, store.ClientOnWorker)
}

// getClientProfileHandler godoc
//
//	@Summary		Client profile with reputation
//	@Produce		json
//	@Param			clientID	path		int	true	"Client ID"
//	@Success		200			{object}	profileEnvelope
//	@Failure		404			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/profile/client/{clientID} [get]
func (app *application) getClientProfileHandler(w http.ResponseWriter, r *http.Request) {
	app.getProfile(w, r, chi.URLParam(r, "clientID"), store.RoleClient, store.WorkerOnClient)
}

func (app *application) getProfile(w http.ResponseWriter, r *http.Request, userParam string, role store.Role, direction store.Direction) {
	userID, err := strconv.ParseInt(userParam, 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, errors.New("invalid user ID"))
		return
	}

	user, err := app.store.Users.GetByID(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}
	if user.Role != role {
		app.notFoundResponse(w, r, fmt.Errorf("no %s profile for user %d", role, userID))
		return
	}

	reputation, err := app.reviews.Aggregate(r.Context(), userID, direction)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, profileEnvelope{
		Success:    true,
		Message:    "Profile retrieved",
		User:       user,
		Reputation: reputation,
	})
}
