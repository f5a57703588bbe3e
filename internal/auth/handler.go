package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/datingapp/service/internal/response"
	"github.com/datingapp/service/internal/user"
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9_.]{3,32}$`)

const (
	minPasswordLen = 4
	// bcrypt ignores anything past 72 bytes.
	maxPasswordLen = 72
)

// Handler holds HTTP handlers for auth endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a new auth Handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type credentialsRequest struct {
	Username string `json:"username" example:"lisa"`
	Password string `json:"password" example:"pa$$w0rd"`
}

type tokenData struct {
	Token string     `json:"token" example:"eyJhbGci..."`
	User  *user.User `json:"user"`
}

// Register godoc
//
//	@Summary		Register
//	@Description	Create a new account. Usernames are stored lower-case. Issues a JWT on success.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		credentialsRequest	true	"Username and password"
//	@Success		201		{object}	response.Envelope{data=tokenData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		409		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	token, u, err := h.svc.Register(r.Context(), req.Username, req.Password)
	if errors.Is(err, ErrUsernameTaken) {
		response.Conflict(w, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("register failed", zap.String("username", req.Username), zap.Error(err))
		response.InternalError(w)
		return
	}

	response.Created(w, "", tokenData{Token: token, User: u})
}

// Login godoc
//
//	@Summary		Login
//	@Description	Exchange a username and password for a JWT.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		credentialsRequest	true	"Username and password"
//	@Success		200		{object}	response.Envelope{data=tokenData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	token, u, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		response.Unauthorized(w, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		response.InternalError(w)
		return
	}

	response.OK(w, tokenData{Token: token, User: u})
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return req, false
	}
	req.Username = normalize(req.Username)
	if !usernameRegex.MatchString(req.Username) {
		response.BadRequest(w, "username must be 3-32 characters of a-z, 0-9, '_' or '.'")
		return req, false
	}
	if n := len(req.Password); n < minPasswordLen || n > maxPasswordLen {
		response.BadRequest(w, "password must be between 4 and 72 characters")
		return req, false
	}
	if strings.TrimSpace(req.Password) == "" {
		response.BadRequest(w, "password must not be blank")
		return req, false
	}
	return req, true
}
