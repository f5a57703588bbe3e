package photo_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/datingapp/service/internal/photo"
	"github.com/datingapp/service/internal/storage"
)

// memRepo is an in-memory photo.Repository. LoadUser takes a per-user lock
// held until Commit or Rollback, as the Postgres session does.
type memRepo struct {
	mu        sync.Mutex
	users     map[int64]string
	photos    map[int64]photo.Photo
	nextID    int64
	userLocks map[int64]*sync.Mutex

	beginErr  error
	commitErr error
	// hidden photo ids are reported missing by Session.LoadPhoto only.
	hidden map[int64]bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:     map[int64]string{},
		photos:    map[int64]photo.Photo{},
		userLocks: map[int64]*sync.Mutex{},
		hidden:    map[int64]bool{},
	}
}

func (r *memRepo) addUser(id int64, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id] = username
	r.userLocks[id] = &sync.Mutex{}
}

func (r *memRepo) addPhoto(userID int64, isMain bool, publicID *string) photo.Photo {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p := photo.Photo{
		ID:        r.nextID,
		UserID:    userID,
		URL:       fmt.Sprintf("https://img.test/seed-%d.jpg", r.nextID),
		PublicID:  publicID,
		IsMain:    isMain,
		DateAdded: time.Date(2024, 1, 1, 0, 0, int(r.nextID), 0, time.UTC),
	}
	r.photos[p.ID] = p
	return p
}

// photosOf returns committed photos of a user ordered by id.
func (r *memRepo) photosOf(userID int64) []photo.Photo {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []photo.Photo
	for _, p := range r.photos {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRepo) mainCount(userID int64) int {
	n := 0
	for _, p := range r.photosOf(userID) {
		if p.IsMain {
			n++
		}
	}
	return n
}

func (r *memRepo) UserExists(_ context.Context, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[userID]
	return ok, nil
}

func (r *memRepo) GetPhoto(_ context.Context, photoID int64) (*photo.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.photos[photoID]
	if !ok {
		return nil, photo.ErrRecordNotFound
	}
	return &p, nil
}

func (r *memRepo) Begin(_ context.Context) (photo.Session, error) {
	if r.beginErr != nil {
		return nil, r.beginErr
	}
	return &memSession{repo: r, tracked: map[int64]*photo.Photo{}, removed: map[int64]bool{}}, nil
}

type memSession struct {
	repo    *memRepo
	lock    *sync.Mutex
	tracked map[int64]*photo.Photo
	added   []*photo.Photo
	removed map[int64]bool
	done    bool
}

func (s *memSession) LoadUser(_ context.Context, userID int64) (*photo.User, error) {
	s.repo.mu.Lock()
	username, ok := s.repo.users[userID]
	lock := s.repo.userLocks[userID]
	s.repo.mu.Unlock()
	if !ok {
		return nil, photo.ErrRecordNotFound
	}

	lock.Lock()
	s.lock = lock

	u := &photo.User{ID: userID, Username: username}
	for _, p := range s.repo.photosOf(userID) {
		cp := p
		s.tracked[cp.ID] = &cp
		u.Photos = append(u.Photos, &cp)
	}
	return u, nil
}

func (s *memSession) LoadPhoto(_ context.Context, photoID int64) (*photo.Photo, error) {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	if s.repo.hidden[photoID] {
		return nil, photo.ErrRecordNotFound
	}
	if p, ok := s.tracked[photoID]; ok {
		return p, nil
	}
	p, ok := s.repo.photos[photoID]
	if !ok {
		return nil, photo.ErrRecordNotFound
	}
	s.tracked[photoID] = &p
	return &p, nil
}

func (s *memSession) Add(p *photo.Photo) { s.added = append(s.added, p) }

func (s *memSession) Remove(p *photo.Photo) { s.removed[p.ID] = true }

func (s *memSession) Commit(_ context.Context) error {
	defer s.release()
	if s.repo.commitErr != nil {
		return s.repo.commitErr
	}

	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	for id, p := range s.tracked {
		if s.removed[id] {
			delete(s.repo.photos, id)
			continue
		}
		s.repo.photos[id] = *p
	}
	for _, p := range s.added {
		s.repo.nextID++
		p.ID = s.repo.nextID
		s.repo.photos[p.ID] = *p
	}
	return nil
}

func (s *memSession) Rollback(_ context.Context) error {
	s.release()
	return nil
}

func (s *memSession) release() {
	if s.done {
		return
	}
	s.done = true
	if s.lock != nil {
		s.lock.Unlock()
	}
}

// fakeStore is an in-memory image store.
type fakeStore struct {
	mu      sync.Mutex
	uploads int
	deletes []string
	objects map[string]bool

	uploadErr    error
	deleteErr    error
	deleteStatus storage.DeleteStatus
	// hang makes calls wait for the context to end.
	hang bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]bool{}}
}

func (f *fakeStore) Upload(ctx context.Context, data []byte, _ string, t storage.Transformation) (storage.UploadResult, error) {
	if f.hang {
		<-ctx.Done()
		return storage.UploadResult{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return storage.UploadResult{}, f.uploadErr
	}
	if t != storage.ProfileTransformation {
		return storage.UploadResult{}, fmt.Errorf("unexpected transformation %+v", t)
	}
	f.uploads++
	id := fmt.Sprintf("pid-%d", f.uploads)
	f.objects[id] = true
	return storage.UploadResult{URL: "https://img.test/" + id + ".jpg", PublicID: id}, nil
}

func (f *fakeStore) Delete(ctx context.Context, publicID string) (storage.DeleteResult, error) {
	if f.hang {
		<-ctx.Done()
		return storage.DeleteResult{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, publicID)
	if f.deleteErr != nil {
		return storage.DeleteResult{}, f.deleteErr
	}
	if f.deleteStatus == storage.DeleteOK {
		delete(f.objects, publicID)
	}
	return storage.DeleteResult{PublicID: publicID, Status: f.deleteStatus}, nil
}

func (f *fakeStore) calls() (uploads, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, len(f.deletes)
}

func strPtr(s string) *string { return &s }
