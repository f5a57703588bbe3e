package user_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datingapp/service/internal/middleware"
	"github.com/datingapp/service/internal/photo"
	"github.com/datingapp/service/internal/user"
)

type stubStore struct {
	users     map[int64]*user.User
	listErr   error
	lastLimit int
	lastOff   int
}

func (s *stubStore) Create(_ context.Context, username, _ string) (*user.User, error) {
	u := &user.User{ID: int64(len(s.users) + 1), Username: username}
	s.users[u.ID] = u
	return u, nil
}

func (s *stubStore) GetByID(_ context.Context, id int64) (*user.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (s *stubStore) GetByUsername(_ context.Context, username string) (*user.User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *stubStore) List(_ context.Context, limit, offset int) ([]*user.User, error) {
	s.lastLimit, s.lastOff = limit, offset
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*user.User
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *stubStore) Touch(context.Context, int64) error { return nil }

type stubPhotos map[int64][]*photo.Photo

func (s stubPhotos) ListByUser(_ context.Context, userID int64) ([]*photo.Photo, error) {
	return s[userID], nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newRouter(store *stubStore, photos stubPhotos) http.Handler {
	h := user.NewHandler(user.NewService(store, photos))
	r := chi.NewRouter()
	r.Get("/users", h.ListUsers)
	r.Get("/users/me", h.GetMe)
	r.Get("/users/{userId}", h.GetUser)
	return r
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestGetUserIncludesMainPhotoURLAndPhotos(t *testing.T) {
	mainURL := "https://img.test/main.jpg"
	store := &stubStore{users: map[int64]*user.User{
		1: {ID: 1, Username: "alice", PhotoURL: &mainURL, CreatedAt: time.Now()},
	}}
	photos := stubPhotos{1: {
		{ID: 10, UserID: 1, URL: mainURL, IsMain: true},
		{ID: 11, UserID: 1, URL: "https://img.test/b.jpg"},
	}}

	rec := httptest.NewRecorder()
	newRouter(store, photos).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	require.True(t, env.Success)

	var d user.Detail
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.Equal(t, "alice", d.Username)
	require.NotNil(t, d.PhotoURL)
	assert.Equal(t, mainURL, *d.PhotoURL)
	assert.Len(t, d.Photos, 2)
}

func TestGetUserNotFound(t *testing.T) {
	store := &stubStore{users: map[int64]*user.User{}}

	rec := httptest.NewRecorder()
	newRouter(store, stubPhotos{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/7", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "user not found", decode(t, rec).Error)
}

func TestGetUserInvalidID(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubStore{}, stubPhotos{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/abc", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMeRequiresIdentity(t *testing.T) {
	store := &stubStore{users: map[int64]*user.User{2: {ID: 2, Username: "bob"}}}
	router := newRouter(store, stubPhotos{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), 2))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var d user.Detail
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &d))
	assert.Equal(t, "bob", d.Username)
	assert.NotNil(t, d.Photos)
}

func TestListUsersPaging(t *testing.T) {
	store := &stubStore{users: map[int64]*user.User{1: {ID: 1, Username: "alice"}}}

	rec := httptest.NewRecorder()
	newRouter(store, stubPhotos{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users?page=3&pageSize=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, store.lastLimit)
	assert.Equal(t, 10, store.lastOff)

	rec = httptest.NewRecorder()
	newRouter(store, stubPhotos{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users?pageSize=500", nil))
	assert.Equal(t, 10, store.lastLimit)
	assert.Equal(t, 0, store.lastOff)
}

func TestListUsersError(t *testing.T) {
	store := &stubStore{users: map[int64]*user.User{}, listErr: errors.New("boom")}

	rec := httptest.NewRecorder()
	newRouter(store, stubPhotos{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
