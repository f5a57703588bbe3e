package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/datingapp/service/internal/config"
	"github.com/datingapp/service/internal/user"
)

// ErrInvalidCredentials is returned when the username or password is wrong.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrUsernameTaken is returned when registering an existing username.
var ErrUsernameTaken = errors.New("username is already taken")

// Credentials looks up stored password hashes.
type Credentials interface {
	GetCredentials(ctx context.Context, username string) (int64, string, error)
}

// Users creates and reads user accounts.
type Users interface {
	Create(ctx context.Context, username, passwordHash string) (*user.User, error)
	GetByID(ctx context.Context, id int64) (*user.User, error)
	Touch(ctx context.Context, id int64) error
}

// Service contains the business logic for authentication.
type Service struct {
	creds Credentials
	users Users
	cfg   *config.Config
	now   func() time.Time
	cost  int
}

// NewService creates a new auth Service.
func NewService(creds Credentials, users Users, cfg *config.Config) *Service {
	return &Service{creds: creds, users: users, cfg: cfg, now: time.Now, cost: bcrypt.DefaultCost}
}

// Register creates a new account and issues a JWT for it.
func (s *Service) Register(ctx context.Context, username, password string) (string, *user.User, error) {
	username = normalize(username)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.Create(ctx, username, string(hash))
	if errors.Is(err, user.ErrAlreadyExists) {
		return "", nil, ErrUsernameTaken
	}
	if err != nil {
		return "", nil, err
	}

	token, err := s.issueToken(u.ID, u.Username)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, u, nil
}

// Login checks the password for username and issues a JWT.
func (s *Service) Login(ctx context.Context, username, password string) (string, *user.User, error) {
	username = normalize(username)

	id, hash, err := s.creds.GetCredentials(ctx, username)
	if errors.Is(err, ErrUnknownUser) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	if err := s.users.Touch(ctx, id); err != nil {
		return "", nil, err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return "", nil, fmt.Errorf("get user: %w", err)
	}

	token, err := s.issueToken(u.ID, u.Username)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, u, nil
}

// issueToken creates a signed JWT for the given user.
func (s *Service) issueToken(userID int64, username string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":         strconv.FormatInt(userID, 10),
		"unique_name": username,
		"iat":         now.Unix(),
		"exp":         now.Add(s.cfg.JWTTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
