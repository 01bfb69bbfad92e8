package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
)

func TestDiskStorage(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewDiskStorage(root)
	require.NoError(t, err)

	read := func(t *testing.T, key string) string {
		rc, err := s.Open(ctx, key)
		require.NoError(t, err)
		defer rc.Close()
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(b)
	}

	t.Run("save and open", func(t *testing.T) {
		err := s.Save(ctx, "courses/c1/files/f1", core.Upload{Name: "intro.pdf", Content: strings.NewReader("v1")})
		require.NoError(t, err)
		assert.Equal(t, "v1", read(t, "courses/c1/files/f1"))
	})

	t.Run("save overwrites", func(t *testing.T) {
		err := s.Save(ctx, "courses/c1/files/f1", core.Upload{Name: "intro.pdf", Content: strings.NewReader("v2")})
		require.NoError(t, err)
		assert.Equal(t, "v2", read(t, "courses/c1/files/f1"))
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := s.Open(ctx, "courses/c1/files/nope")
		assert.Equal(t, core.ErrFileNotFound, err)
	})

	t.Run("keys stay under root", func(t *testing.T) {
		err := s.Save(ctx, "../../escape", core.Upload{Content: strings.NewReader("x")})
		require.NoError(t, err)
		_, err = os.Stat(filepath.Join(root, "escape"))
		assert.NoError(t, err)

		assert.Error(t, s.Save(ctx, "/", core.Upload{Content: strings.NewReader("x")}))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "courses/c1/files/f1"))
		require.NoError(t, s.Delete(ctx, "courses/c1/files/f1"))
		_, err := s.Open(ctx, "courses/c1/files/f1")
		assert.Equal(t, core.ErrFileNotFound, err)
	})
}

func TestMinioStorage(t *testing.T) {
	endpoint := os.Getenv("TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_MINIO_ENDPOINT not set")
	}
	ctx := context.Background()
	s, err := NewMinioStorage(ctx, core.MinioConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("TEST_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("TEST_MINIO_SECRET_KEY"),
		Bucket:    "darasa-test",
	})
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "k1", core.Upload{Name: "a.txt", ContentType: "text/plain", Size: 5, Content: strings.NewReader("hello")}))
	rc, err := s.Open(ctx, "k1")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	_ = rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	require.NoError(t, s.Delete(ctx, "k1"))
	_, err = s.Open(ctx, "k1")
	assert.Equal(t, core.ErrFileNotFound, err)
}
