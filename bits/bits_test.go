package bits_test

import (
	"strings"
	"testing"

	"github.com/nicolagi/gridserve/bits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	t.Run("what you put is what you get", func(t *testing.T) {
		b := bits.PutRecord("image/png", []byte("\x89PNG"))
		contentType, data, err := bits.GetRecord(b)
		require.Nil(t, err)
		assert.Equal(t, "image/png", contentType)
		assert.Equal(t, []byte("\x89PNG"), data)
	})
	t.Run("empty content type and data", func(t *testing.T) {
		contentType, data, err := bits.GetRecord(bits.PutRecord("", nil))
		require.Nil(t, err)
		assert.Equal(t, "", contentType)
		assert.Empty(t, data)
	})
	t.Run("truncated length", func(t *testing.T) {
		_, _, err := bits.GetRecord([]byte{1})
		assert.Equal(t, bits.ErrShortRecord, err)
	})
	t.Run("truncated content type", func(t *testing.T) {
		_, _, err := bits.GetRecord([]byte{9, 0, 'a'})
		assert.Equal(t, bits.ErrShortRecord, err)
	})
	t.Run("overlong content type is truncated", func(t *testing.T) {
		long := strings.Repeat("x", 0x10000+3)
		contentType, data, err := bits.GetRecord(bits.PutRecord(long, []byte("z")))
		require.Nil(t, err)
		assert.Len(t, contentType, 0xffff)
		assert.Equal(t, []byte("z"), data)
	})
}
