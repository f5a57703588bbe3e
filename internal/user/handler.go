package user

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/datingapp/service/internal/middleware"
	"github.com/datingapp/service/internal/response"
)

// Handler holds HTTP handlers for user-related endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new user Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GetMe godoc
//
//	@Summary		Get current user
//	@Description	Returns the profile and photos of the currently authenticated user.
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=Detail}
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/users/me [get]
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}
	h.writeDetail(w, r, userID)
}

// GetUser godoc
//
//	@Summary		Get user
//	@Description	Returns a user's profile with their photos.
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			userId	path		int	true	"User ID"
//	@Success		200	{object}	response.Envelope{data=Detail}
//	@Failure		400	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/users/{userId} [get]
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "invalid user id")
		return
	}
	h.writeDetail(w, r, id)
}

// ListUsers godoc
//
//	@Summary		List users
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			page		query		int	false	"Page number"	default(1)
//	@Param			pageSize	query		int	false	"Page size"		default(10)
//	@Success		200			{object}	response.Envelope{data=[]User}
//	@Failure		500			{object}	response.Envelope
//	@Router			/users [get]
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	users, err := h.svc.List(r.Context(), page, pageSize)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, users)
}

func (h *Handler) writeDetail(w http.ResponseWriter, r *http.Request, id int64) {
	d, err := h.svc.GetDetail(r.Context(), id)
	if err != nil {
		if h.svc.IsNotFound(err) {
			response.NotFound(w, "user not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, d)
}
