package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

var (
	// ErrEmptyImage is returned when Upload receives no bytes.
	ErrEmptyImage = errors.New("storage: empty image")
	// ErrInvalidImage is returned when the bytes cannot be decoded as an image.
	ErrInvalidImage = errors.New("storage: invalid image")
)

// Transformation describes how an image is reshaped before it is stored.
type Transformation struct {
	Width   int
	Height  int
	Crop    string // fill, fit, scale
	Gravity string // center, north, south, east, west, north_east, ..., face
}

// ProfileTransformation is applied to every profile photo: a 500x500 square
// filled around the face.
var ProfileTransformation = Transformation{Width: 500, Height: 500, Crop: "fill", Gravity: "face"}

// UploadResult references one stored image.
type UploadResult struct {
	URL      string
	PublicID string
}

// DeleteStatus is the outcome reported by the store for a delete.
type DeleteStatus int

const (
	DeleteOK DeleteStatus = iota
	DeleteNotFound
)

func (s DeleteStatus) String() string {
	switch s {
	case DeleteOK:
		return "ok"
	case DeleteNotFound:
		return "not found"
	default:
		return fmt.Sprintf("DeleteStatus(%d)", int(s))
	}
}

// DeleteResult is returned by ImageStore.Delete when the store answered.
type DeleteResult struct {
	PublicID string
	Status   DeleteStatus
}

// OK reports whether the store confirmed the removal.
func (r DeleteResult) OK() bool { return r.Status == DeleteOK }

// ImageStore transforms images and keeps them in a Storage under opaque public ids.
type ImageStore struct {
	store  Storage
	prefix string
	newID  func() string
}

// NewImageStore wraps store. Objects are written below prefix (e.g. "photos/").
func NewImageStore(store Storage, prefix string) *ImageStore {
	return &ImageStore{store: store, prefix: prefix, newID: uuid.NewString}
}

// Upload decodes data, applies t, and stores the result as JPEG.
func (s *ImageStore) Upload(ctx context.Context, data []byte, filename string, t Transformation) (UploadResult, error) {
	if len(data) == 0 {
		return UploadResult{}, ErrEmptyImage
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return UploadResult{}, fmt.Errorf("%w: decode %q: %v", ErrInvalidImage, filename, err)
	}

	out, err := Apply(src, t)
	if err != nil {
		return UploadResult{}, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return UploadResult{}, fmt.Errorf("encode %q: %w", filename, err)
	}

	publicID := s.newID()
	key := s.key(publicID)
	if err := s.store.Upload(ctx, key, &buf, int64(buf.Len()), "image/jpeg"); err != nil {
		return UploadResult{}, err
	}

	return UploadResult{URL: s.store.PublicURL(key), PublicID: publicID}, nil
}

// Delete removes the image stored under publicID. A missing object is an
// answered request with status DeleteNotFound, not an error.
func (s *ImageStore) Delete(ctx context.Context, publicID string) (DeleteResult, error) {
	err := s.store.Delete(ctx, s.key(publicID))
	switch {
	case errors.Is(err, ErrObjectNotFound):
		return DeleteResult{PublicID: publicID, Status: DeleteNotFound}, nil
	case err != nil:
		return DeleteResult{}, err
	}
	return DeleteResult{PublicID: publicID, Status: DeleteOK}, nil
}

func (s *ImageStore) key(publicID string) string {
	return s.prefix + publicID + ".jpg"
}

// Apply reshapes img according to t.
func Apply(img image.Image, t Transformation) (*image.NRGBA, error) {
	if t.Width <= 0 || t.Height <= 0 {
		return nil, fmt.Errorf("storage: invalid dimensions %dx%d", t.Width, t.Height)
	}

	switch t.Crop {
	case "fill", "":
		anchor, err := anchorFor(t.Gravity)
		if err != nil {
			return nil, err
		}
		return imaging.Fill(img, t.Width, t.Height, anchor, imaging.Lanczos), nil
	case "fit":
		return imaging.Fit(img, t.Width, t.Height, imaging.Lanczos), nil
	case "scale":
		return imaging.Resize(img, t.Width, t.Height, imaging.Lanczos), nil
	default:
		return nil, fmt.Errorf("storage: unsupported crop %q", t.Crop)
	}
}

var anchors = map[string]imaging.Anchor{
	"":           imaging.Center,
	"center":     imaging.Center,
	"north":      imaging.Top,
	"south":      imaging.Bottom,
	"east":       imaging.Right,
	"west":       imaging.Left,
	"north_east": imaging.TopRight,
	"north_west": imaging.TopLeft,
	"south_east": imaging.BottomRight,
	"south_west": imaging.BottomLeft,
	// No face detector is available; faces are framed by the centre crop.
	"face": imaging.Center,
}

func anchorFor(gravity string) (imaging.Anchor, error) {
	a, ok := anchors[gravity]
	if !ok {
		return imaging.Center, fmt.Errorf("storage: unsupported gravity %q", gravity)
	}
	return a, nil
}
