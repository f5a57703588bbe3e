package photo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/datingapp/service/internal/storage"
)

// ObjectStore keeps the photo binaries.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, filename string, t storage.Transformation) (storage.UploadResult, error)
	Delete(ctx context.Context, publicID string) (storage.DeleteResult, error)
}

// Repository persists users' photo collections.
type Repository interface {
	// UserExists reports whether a user record exists, without locking it.
	UserExists(ctx context.Context, userID int64) (bool, error)
	// GetPhoto reads a single photo outside of any session.
	GetPhoto(ctx context.Context, photoID int64) (*Photo, error)
	// Begin opens a session. Mutations staged on it are applied by Commit as
	// one unit or not at all.
	Begin(ctx context.Context) (Session, error)
}

// Session is a unit of work over one user's photos. LoadUser serialises the
// session against every other session that loads the same user, until Commit
// or Rollback.
type Session interface {
	LoadUser(ctx context.Context, userID int64) (*User, error)
	// LoadPhoto returns the tracked instance when the photo was already loaded
	// through LoadUser, so flag changes on either value are the same change.
	LoadPhoto(ctx context.Context, photoID int64) (*Photo, error)
	// Add stages p for insertion; Commit assigns p.ID and p.DateAdded.
	Add(p *Photo)
	// Remove stages p for deletion.
	Remove(p *Photo)
	// Commit persists every staged change, including IsMain flips on
	// loaded photos.
	Commit(ctx context.Context) error
	// Rollback discards the session. It is a no-op after Commit.
	Rollback(ctx context.Context) error
}

// Service implements the photo lifecycle: add, promote to main, delete.
type Service struct {
	repo         Repository
	store        ObjectStore
	logger       *zap.Logger
	storeTimeout time.Duration
	now          func() time.Time
}

// NewService creates a Service. Every object store call is bounded by storeTimeout.
func NewService(repo Repository, store ObjectStore, logger *zap.Logger, storeTimeout time.Duration) *Service {
	return &Service{
		repo:         repo,
		store:        store,
		logger:       logger,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// AddPhoto uploads the image and appends it to the user's collection. The first
// photo a user has becomes the main photo.
func (s *Service) AddPhoto(ctx context.Context, callerID, userID int64, in Upload) (*Photo, error) {
	const op = "add photo"

	if err := authorize(op, callerID, userID); err != nil {
		return nil, err
	}

	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, &Error{Op: op, Kind: PersistenceFailed, Err: err}
	}
	if !exists {
		return nil, &Error{Op: op, Kind: NotFound, Msg: "user not found"}
	}

	if len(in.Data) == 0 {
		return nil, &Error{Op: op, Kind: InvalidInput, Msg: "photo file is empty"}
	}

	// The upload runs before the session opens so the user row is not locked
	// while the image store works.
	ref, err := s.upload(ctx, in)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidImage) || errors.Is(err, storage.ErrEmptyImage) {
			return nil, &Error{Op: op, Kind: InvalidInput, Msg: "file is not a supported image", Err: err}
		}
		s.logger.Error("photo upload failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, &Error{Op: op, Kind: RemoteUploadFailed, Err: err}
	}

	sess, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, s.orphaned(op, userID, ref.PublicID, err)
	}
	defer s.rollback(ctx, sess)

	u, err := sess.LoadUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			s.logOrphan(userID, ref.PublicID, err)
			return nil, &Error{Op: op, Kind: NotFound, Msg: "user not found", OrphanedPublicID: ref.PublicID}
		}
		return nil, s.orphaned(op, userID, ref.PublicID, err)
	}

	publicID := ref.PublicID
	p := &Photo{
		UserID:      userID,
		URL:         ref.URL,
		PublicID:    &publicID,
		Description: in.Description,
		IsMain:      u.MainPhoto() == nil,
		DateAdded:   s.now().UTC(),
	}
	sess.Add(p)
	u.Photos = append(u.Photos, p)

	if err := sess.Commit(ctx); err != nil {
		return nil, s.orphaned(op, userID, ref.PublicID, err)
	}

	s.logger.Info("photo added",
		zap.Int64("user_id", userID),
		zap.Int64("photo_id", p.ID),
		zap.Bool("is_main", p.IsMain))
	return p, nil
}

// SetMainPhoto makes photoID the user's main photo and demotes the previous one.
func (s *Service) SetMainPhoto(ctx context.Context, callerID, userID, photoID int64) error {
	const op = "set main photo"

	if err := authorize(op, callerID, userID); err != nil {
		return err
	}

	sess, err := s.repo.Begin(ctx)
	if err != nil {
		return &Error{Op: op, Kind: PersistenceFailed, Err: err}
	}
	defer s.rollback(ctx, sess)

	u, p, err := s.loadOwned(ctx, op, sess, userID, photoID)
	if err != nil {
		return err
	}

	if p.IsMain {
		return &Error{Op: op, Kind: AlreadyMain}
	}

	current := u.MainPhoto()
	if current == nil {
		s.logger.Error("user has photos but no main photo", zap.Int64("user_id", userID))
		return &Error{Op: op, Kind: InvariantViolation}
	}

	current.IsMain = false
	p.IsMain = true

	if err := sess.Commit(ctx); err != nil {
		return &Error{Op: op, Kind: PersistenceFailed, Msg: "could not set photo to main", Err: err}
	}

	s.logger.Info("main photo changed",
		zap.Int64("user_id", userID),
		zap.Int64("previous_photo_id", current.ID),
		zap.Int64("photo_id", p.ID))
	return nil
}

// DeletePhoto removes a non-main photo. When the photo is backed by a remote
// image, the record is removed only after the image store confirms the delete.
func (s *Service) DeletePhoto(ctx context.Context, callerID, userID, photoID int64) error {
	const op = "delete photo"

	if err := authorize(op, callerID, userID); err != nil {
		return err
	}

	sess, err := s.repo.Begin(ctx)
	if err != nil {
		return &Error{Op: op, Kind: PersistenceFailed, Err: err}
	}
	// The session stays open across the remote delete so the photo cannot be
	// promoted to main in between.
	defer s.rollback(ctx, sess)

	_, p, err := s.loadOwned(ctx, op, sess, userID, photoID)
	if err != nil {
		return err
	}

	if p.IsMain {
		return &Error{Op: op, Kind: CannotDeleteMain}
	}

	if p.PublicID != nil {
		if err := s.deleteRemote(ctx, *p.PublicID); err != nil {
			s.logger.Warn("remote photo delete failed",
				zap.Int64("user_id", userID),
				zap.Int64("photo_id", photoID),
				zap.String("public_id", *p.PublicID),
				zap.Error(err))
			return &Error{Op: op, Kind: RemoteDeleteFailed, Err: err}
		}
	}

	sess.Remove(p)

	if err := sess.Commit(ctx); err != nil {
		if p.PublicID != nil {
			s.logger.Error("photo record kept after its remote image was deleted",
				zap.Int64("photo_id", photoID),
				zap.String("public_id", *p.PublicID),
				zap.Error(err))
		}
		return &Error{Op: op, Kind: PersistenceFailed, Msg: "failed to delete the photo", Err: err}
	}

	s.logger.Info("photo deleted", zap.Int64("user_id", userID), zap.Int64("photo_id", photoID))
	return nil
}

// GetPhoto returns a single photo by id.
func (s *Service) GetPhoto(ctx context.Context, photoID int64) (*Photo, error) {
	const op = "get photo"

	p, err := s.repo.GetPhoto(ctx, photoID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, &Error{Op: op, Kind: NotFound, Msg: "photo not found"}
	}
	if err != nil {
		return nil, &Error{Op: op, Kind: PersistenceFailed, Err: err}
	}
	return p, nil
}

// loadOwned loads the user, checks that photoID is in their collection, then
// loads the photo by id. The two lookups are kept separate: membership decides
// authorisation, the by-id load guards against a vanished record.
func (s *Service) loadOwned(ctx context.Context, op string, sess Session, userID, photoID int64) (*User, *Photo, error) {
	u, err := sess.LoadUser(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil, &Error{Op: op, Kind: NotFound, Msg: "user not found"}
	}
	if err != nil {
		return nil, nil, &Error{Op: op, Kind: PersistenceFailed, Err: err}
	}

	if err := authorizePhoto(op, u, photoID); err != nil {
		return nil, nil, err
	}

	p, err := sess.LoadPhoto(ctx, photoID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil, &Error{Op: op, Kind: NotFound, Msg: "photo not found"}
	}
	if err != nil {
		return nil, nil, &Error{Op: op, Kind: PersistenceFailed, Err: err}
	}
	return u, p, nil
}

func (s *Service) upload(ctx context.Context, in Upload) (storage.UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	ref, err := s.store.Upload(ctx, in.Data, in.Filename, storage.ProfileTransformation)
	if err != nil {
		return storage.UploadResult{}, err
	}
	if ref.URL == "" || ref.PublicID == "" {
		return storage.UploadResult{}, errors.New("image store returned an empty reference")
	}
	return ref, nil
}

func (s *Service) deleteRemote(ctx context.Context, publicID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	res, err := s.store.Delete(ctx, publicID)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("image store answered %q", res.Status)
	}
	return nil
}

func (s *Service) orphaned(op string, userID int64, publicID string, err error) error {
	s.logOrphan(userID, publicID, err)
	return &Error{Op: op, Kind: PersistenceFailed, Msg: "could not add photo", Err: err, OrphanedPublicID: publicID}
}

func (s *Service) logOrphan(userID int64, publicID string, err error) {
	s.logger.Warn("uploaded image has no photo record",
		zap.Int64("user_id", userID),
		zap.String("public_id", publicID),
		zap.Error(err))
}

func (s *Service) rollback(ctx context.Context, sess Session) {
	if err := sess.Rollback(ctx); err != nil {
		s.logger.Warn("photo session rollback failed", zap.Error(err))
	}
}
