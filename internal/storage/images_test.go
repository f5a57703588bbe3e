package storage_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datingapp/service/internal/storage"
)

type memStorage struct {
	objects   map[string][]byte
	types     map[string]string
	uploadErr error
	deleteErr error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStorage) Upload(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(b)) != size {
		return errors.New("size mismatch")
	}
	m.objects[key] = b
	m.types[key] = contentType
	return nil
}

func (m *memStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *memStorage) PublicURL(key string) string {
	return "http://cdn.test/" + key
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageStoreUploadAppliesProfileTransformation(t *testing.T) {
	mem := newMemStorage()
	store := storage.NewImageStore(mem, "photos/")

	res, err := store.Upload(context.Background(), pngBytes(t, 800, 600), "me.png", storage.ProfileTransformation)
	require.NoError(t, err)

	require.NotEmpty(t, res.PublicID)
	key := "photos/" + res.PublicID + ".jpg"
	assert.Equal(t, "http://cdn.test/"+key, res.URL)
	require.Contains(t, mem.objects, key)
	assert.Equal(t, "image/jpeg", mem.types[key])

	stored, err := imaging.Decode(bytes.NewReader(mem.objects[key]))
	require.NoError(t, err)
	assert.Equal(t, 500, stored.Bounds().Dx())
	assert.Equal(t, 500, stored.Bounds().Dy())
}

func TestImageStoreUploadRejectsEmptyAndGarbage(t *testing.T) {
	store := storage.NewImageStore(newMemStorage(), "")

	_, err := store.Upload(context.Background(), nil, "empty.png", storage.ProfileTransformation)
	assert.ErrorIs(t, err, storage.ErrEmptyImage)

	_, err = store.Upload(context.Background(), []byte("not an image"), "x.png", storage.ProfileTransformation)
	assert.ErrorIs(t, err, storage.ErrInvalidImage)
}

func TestImageStoreUploadPropagatesStorageError(t *testing.T) {
	mem := newMemStorage()
	mem.uploadErr = errors.New("bucket unavailable")
	store := storage.NewImageStore(mem, "")

	_, err := store.Upload(context.Background(), pngBytes(t, 10, 10), "a.png", storage.ProfileTransformation)
	assert.ErrorIs(t, err, mem.uploadErr)
}

func TestImageStoreDelete(t *testing.T) {
	mem := newMemStorage()
	store := storage.NewImageStore(mem, "photos/")
	ctx := context.Background()

	res, err := store.Upload(ctx, pngBytes(t, 20, 20), "a.png", storage.ProfileTransformation)
	require.NoError(t, err)

	del, err := store.Delete(ctx, res.PublicID)
	require.NoError(t, err)
	assert.True(t, del.OK())
	assert.Empty(t, mem.objects)

	del, err = store.Delete(ctx, res.PublicID)
	require.NoError(t, err)
	assert.False(t, del.OK())
	assert.Equal(t, storage.DeleteNotFound, del.Status)
	assert.Equal(t, "not found", del.Status.String())

	mem.deleteErr = errors.New("network down")
	_, err = store.Delete(ctx, "whatever")
	assert.ErrorIs(t, err, mem.deleteErr)
}

func TestApply(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 300, 100))

	out, err := storage.Apply(src, storage.Transformation{Width: 50, Height: 50, Crop: "fill", Gravity: "north"})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 50), out.Bounds())

	out, err = storage.Apply(src, storage.Transformation{Width: 60, Height: 60, Crop: "fit"})
	require.NoError(t, err)
	assert.Equal(t, 60, out.Bounds().Dx())
	assert.Equal(t, 20, out.Bounds().Dy())

	_, err = storage.Apply(src, storage.Transformation{Width: 50, Height: 50, Crop: "pad"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported crop"))

	_, err = storage.Apply(src, storage.Transformation{Width: 50, Height: 50, Gravity: "up"})
	require.Error(t, err)

	_, err = storage.Apply(src, storage.Transformation{Width: 0, Height: 50})
	require.Error(t, err)
}
