package photo

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/datingapp/service/internal/middleware"
	"github.com/datingapp/service/internal/response"
)

// multipartOverhead is allowed on top of the file size for form boundaries and fields.
const multipartOverhead = 1 << 20

// Handler holds HTTP handlers for photo endpoints.
type Handler struct {
	svc            *Service
	logger         *zap.Logger
	maxUploadBytes int64
}

// NewHandler creates a new photo Handler.
func NewHandler(svc *Service, logger *zap.Logger, maxUploadBytes int64) *Handler {
	return &Handler{svc: svc, logger: logger, maxUploadBytes: maxUploadBytes}
}

// Routes mounts the photo endpoints below /users/{userId}/photos.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.AddPhoto)
	r.Get("/{id}", h.GetPhoto)
	r.Post("/{id}/setMain", h.SetMainPhoto)
	r.Delete("/{id}", h.DeletePhoto)
}

// AddPhoto godoc
//
//	@Summary		Add photo
//	@Description	Upload a photo for the user. The image is cropped to 500x500. The first photo becomes the main photo.
//	@Tags			photos
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			userId		path		int		true	"User ID"
//	@Param			file		formData	file	true	"Image file"
//	@Param			description	formData	string	false	"Description"
//	@Success		201			{object}	response.Envelope{data=Photo}
//	@Failure		400			{object}	response.Envelope
//	@Failure		401			{object}	response.Envelope
//	@Failure		404			{object}	response.Envelope
//	@Failure		413			{object}	response.Envelope
//	@Failure		500			{object}	response.Envelope
//	@Failure		502			{object}	response.Envelope
//	@Router			/users/{userId}/photos [post]
func (h *Handler) AddPhoto(w http.ResponseWriter, r *http.Request) {
	callerID, userID, ok := h.identity(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "photo is too large")
			return
		}
		response.BadRequest(w, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "file is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		response.Error(w, http.StatusRequestEntityTooLarge, "photo is too large")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(w, "could not read file")
		return
	}

	p, err := h.svc.AddPhoto(r.Context(), callerID, userID, Upload{
		Data:        data,
		Filename:    header.Filename,
		Description: r.FormValue("description"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.Created(w, fmt.Sprintf("/api/v1/users/%d/photos/%d", p.UserID, p.ID), p)
}

// GetPhoto godoc
//
//	@Summary		Get photo
//	@Tags			photos
//	@Produce		json
//	@Security		BearerAuth
//	@Param			userId	path		int	true	"User ID"
//	@Param			id		path		int	true	"Photo ID"
//	@Success		200		{object}	response.Envelope{data=Photo}
//	@Failure		401		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Router			/users/{userId}/photos/{id} [get]
func (h *Handler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.UserID(r.Context()); !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}
	photoID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.svc.GetPhoto(r.Context(), photoID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, p)
}

// SetMainPhoto godoc
//
//	@Summary		Set main photo
//	@Description	Make the photo the user's main photo. The previous main photo is demoted.
//	@Tags			photos
//	@Security		BearerAuth
//	@Param			userId	path	int	true	"User ID"
//	@Param			id		path	int	true	"Photo ID"
//	@Success		204
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/users/{userId}/photos/{id}/setMain [post]
func (h *Handler) SetMainPhoto(w http.ResponseWriter, r *http.Request) {
	callerID, userID, ok := h.identity(w, r)
	if !ok {
		return
	}
	photoID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.SetMainPhoto(r.Context(), callerID, userID, photoID); err != nil {
		h.writeError(w, err)
		return
	}
	response.NoContent(w)
}

// DeletePhoto godoc
//
//	@Summary		Delete photo
//	@Description	Delete a photo that is not the main photo, removing its image from the image store first.
//	@Tags			photos
//	@Produce		json
//	@Security		BearerAuth
//	@Param			userId	path		int	true	"User ID"
//	@Param			id		path		int	true	"Photo ID"
//	@Success		200		{object}	response.Envelope
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Failure		502		{object}	response.Envelope
//	@Router			/users/{userId}/photos/{id} [delete]
func (h *Handler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	callerID, userID, ok := h.identity(w, r)
	if !ok {
		return
	}
	photoID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.DeletePhoto(r.Context(), callerID, userID, photoID); err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, nil)
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (callerID, userID int64, ok bool) {
	callerID, ok = middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return 0, 0, false
	}
	userID, ok = pathID(w, r, "userId")
	return callerID, userID, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "invalid "+name)
		return 0, false
	}
	return id, true
}

var kindStatus = map[Kind]int{
	Unauthorized:       http.StatusUnauthorized,
	NotFound:           http.StatusNotFound,
	InvalidInput:       http.StatusBadRequest,
	AlreadyMain:        http.StatusBadRequest,
	CannotDeleteMain:   http.StatusBadRequest,
	RemoteUploadFailed: http.StatusBadGateway,
	RemoteDeleteFailed: http.StatusBadGateway,
	PersistenceFailed:  http.StatusInternalServerError,
	InvariantViolation: http.StatusInternalServerError,
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var perr *Error
	if !errors.As(err, &perr) {
		h.logger.Error("unexpected photo error", zap.Error(err))
		response.InternalError(w)
		return
	}

	status, ok := kindStatus[perr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("photo operation failed", zap.Error(err))
	}
	response.Error(w, status, perr.Message())
}
