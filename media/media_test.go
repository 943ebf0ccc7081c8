package media

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallest byte sequence DetectContentType reports as image/jpeg
var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func TestSniffJPEG(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		want bool
	}{
		{name: "JPEG", body: jpegHeader, want: true},
		{name: "PNG", body: []byte("\x89PNG\r\n\x1a\n0000"), want: false},
		{name: "Text", body: []byte("hello"), want: false},
		{name: "Empty", body: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader(tt.body)
			got, err := SniffJPEG(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			// rewound
			assert.Equal(t, int64(len(tt.body)), int64(r.Len()))
		})
	}
}

func TestDiskStorage(t *testing.T) {
	root := filepath.Join(t.TempDir(), "photos")
	d, err := NewDiskStorage(root, "/uploads/photos")
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("Put Writes File And Returns URL", func(t *testing.T) {
		url, err := d.Put(ctx, "u1/a.jpg", bytes.NewReader(jpegHeader), int64(len(jpegHeader)), "image/jpeg")
		require.NoError(t, err)
		assert.Equal(t, "/uploads/photos/u1/a.jpg", url)

		data, err := os.ReadFile(filepath.Join(root, "u1", "a.jpg"))
		require.NoError(t, err)
		assert.Equal(t, jpegHeader, data)

		_, err = os.Stat(filepath.Join(root, "u1", "a.jpg.tmp"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("Rejects Escaping Keys", func(t *testing.T) {
		for _, key := range []string{"", "../x.jpg", "/abs.jpg", "a/../../b.jpg"} {
			_, err := d.Put(ctx, key, bytes.NewReader(jpegHeader), 1, "image/jpeg")
			assert.ErrorIs(t, err, ErrValidation, key)
		}
	})

	t.Run("Delete Is Idempotent", func(t *testing.T) {
		require.NoError(t, d.Delete(ctx, "u1/a.jpg"))
		require.NoError(t, d.Delete(ctx, "u1/a.jpg"))
	})
}
