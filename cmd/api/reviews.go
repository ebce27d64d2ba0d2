package main

import (
	"errors"
	"net/http"
	"strconv"

	"chamba/internal/reviews"
	"chamba/internal/store"

	"github.com/go-chi/chi/v5"
)

type createReviewPayload struct {
	Worker  int64  `json:"worker" validate:"required"`
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"omitempty,max=300"`
}

type createClientReviewPayload struct {
	Client  int64  `json:"client" validate:"required"`
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"omitempty,max=300"`
}

type updateReviewPayload struct {
	Rating  *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment *string `json:"comment" validate:"omitempty,max=300"`
}

type reviewEnvelope struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Review  *store.Review `json:"review"`
}

type reviewsEnvelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Reviews []store.Review `json:"reviews"`
}

// createReviewHandler godoc
//
//	@Summary		Submit a review about a worker
//	@Description	A client rates a worker 1-5 with an optional comment. One review per client/worker pair.
//	@Tags			reviews
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		createReviewPayload	true	"Review"
//	@Success		201		{object}	reviewEnvelope
//	@Failure		400		{object}	error	"Missing fields or duplicate review"
//	@Failure		403		{object}	error	"Role mismatch"
//	@Failure		404		{object}	error	"Worker not found"
//	@Security		ApiKeyAuth
//	@Router			/review/createreview [post]
func (app *application) createReviewHandler(w http.ResponseWriter, r *http.Request) {
	var payload createReviewPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	actor := getActorFromContext(r)

	review, err := app.reviews.Create(r.Context(), actor.ID, actor.Role, payload.Worker, payload.Rating, payload.Comment)
	if err != nil {
		app.reviewServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, reviewEnvelope{
		Success: true,
		Message: "Review submitted successfully",
		Review:  review,
	})
}

// createClientReviewHandler godoc
//
//	@Summary		Submit a review about a client
//	@Description	A worker rates a client 1-5 with an optional comment. One review per worker/client pair.
//	@Tags			reviews
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		createClientReviewPayload	true	"Review"
//	@Success		201		{object}	reviewEnvelope
//	@Failure		400		{object}	error	"Missing fields or duplicate review"
//	@Failure		403		{object}	error	"Role mismatch"
//	@Failure		404		{object}	error	"Client not found"
//	@Security		ApiKeyAuth
//	@Router			/review/createclientreview [post]
func (app *application) createClientReviewHandler(w http.ResponseWriter, r *http.Request) {
	var payload createClientReviewPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	actor := getActorFromContext(r)

	review, err := app.reviews.Create(r.Context(), actor.ID, actor.Role, payload.Client, payload.Rating, payload.Comment)
	if err != nil {
		app.reviewServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, reviewEnvelope{
		Success: true,
		Message: "Review submitted successfully",
		Review:  review,
	})
}

// getWorkerReviewsHandler godoc
//
//	@Summary		List reviews about a worker
//	@Produce		json
//	@Param			workerID	path		int	true	"Worker ID"
//	@Success		200			{object}	reviewsEnvelope	"Newest first"
//	@Failure		500			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/review/reviews/worker/{workerID} [get]
func (app *application) getWorkerReviewsHandler(w http.ResponseWriter, r *http.Request) {
	app.listReviews(w, r, chi.URLParam(r, "workerID"), store.ClientOnWorker)
}

// getClientReviewsHandler godoc
//
//	@Summary		List reviews about a client
//	@Produce		json
//	@Param			clientID	path		int	true	"Client ID"
//	@Success		200			{object}	reviewsEnvelope	"Newest first"
//	@Failure		500			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/review/reviews/client/{clientID} [get]
func (app *application) getClientReviewsHandler(w http.ResponseWriter, r *http.Request) {
	app.listReviews(w, r, chi.URLParam(r, "clientID"), store.WorkerOnClient)
}

func (app *application) listReviews(w http.ResponseWriter, r *http.Request, subjectParam string, direction store.Direction) {
	subjectID, err := strconv.ParseInt(subjectParam, 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, errors.New("invalid user ID"))
		return
	}

	list, err := app.reviews.ListBySubject(r.Context(), subjectID, direction)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reviewsEnvelope{
		Success: true,
		Message: "Reviews retrieved",
		Reviews: list,
	})
}

// updateReviewHandler godoc
//
//	@Summary		Update own review
//	@Description	Applies only the provided fields. Only the reviewer can update a review.
//	@Accept			json
//	@Produce		json
//	@Param			reviewID	path		int					true	"Review ID"
//	@Param			payload		body		updateReviewPayload	true	"Fields to change"
//	@Success		200			{object}	reviewEnvelope
//	@Failure		403			{object}	error	"Not the owner"
//	@Failure		404			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/review/updatereview/{reviewID} [put]
func (app *application) updateReviewHandler(w http.ResponseWriter, r *http.Request) {
	reviewID, err := strconv.ParseInt(chi.URLParam(r, "reviewID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, errors.New("invalid review ID"))
		return
	}

	var payload updateReviewPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	actor := getActorFromContext(r)

	review, err := app.reviews.Update(r.Context(), actor.ID, reviewID, payload.Rating, payload.Comment)
	if err != nil {
		app.reviewServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reviewEnvelope{
		Success: true,
		Message: "Review updated successfully",
		Review:  review,
	})
}

// deleteReviewHandler godoc
//
//	@Summary		Delete own review
//	@Produce		json
//	@Param			reviewID	path		int	true	"Review ID"
//	@Success		200			{object}	reviewEnvelope	"The deleted review"
//	@Failure		403			{object}	error	"Not the owner"
//	@Failure		404			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/review/deletereview/{reviewID} [delete]
func (app *application) deleteReviewHandler(w http.ResponseWriter, r *http.Request) {
	reviewID, err := strconv.ParseInt(chi.URLParam(r, "reviewID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, errors.New("invalid review ID"))
		return
	}

	actor := getActorFromContext(r)

	review, err := app.reviews.Delete(r.Context(), actor.ID, reviewID)
	if err != nil {
		app.reviewServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reviewEnvelope{
		Success: true,
		Message: "Review deleted successfully",
		Review:  review,
	})
}

// reviewServiceError maps review service failures onto the API contract:
// validation and duplicate pairs are 400, role and ownership violations are
// 403, missing users or reviews are 404.
func (app *application) reviewServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, reviews.ErrInvalidRating),
		errors.Is(err, reviews.ErrInvalidSubject),
		errors.Is(err, reviews.ErrInvalidComment),
		errors.Is(err, store.ErrConflict):
		app.badRequestResponse(w, r, err)
	case errors.Is(err, reviews.ErrInvalidRole),
		errors.Is(err, reviews.ErrRoleMismatch),
		errors.Is(err, reviews.ErrForbidden):
		app.forbiddenResponse(w, r, err)
	case errors.Is(err, store.ErrNotFound):
		app.notFoundResponse(w, r, err)
	default:
		app.internalServerError(w, r, err)
	}
}
