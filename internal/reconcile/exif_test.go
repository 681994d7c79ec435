package reconcile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSkipsNonImages(t *testing.T) {
	technical, err := ExtractTechnicalMetadata(bytes.NewReader([]byte("plain text")), "text/plain")
	require.NoError(t, err)
	assert.Nil(t, technical)
}

func TestExtractImageWithoutExifYieldsNullDate(t *testing.T) {
	technical, err := ExtractTechnicalMetadata(bytes.NewReader(pngBytes), "image/png")
	require.NoError(t, err)
	require.NotNil(t, technical)
	val, ok := technical["file_creation_date"]
	assert.True(t, ok)
	assert.Nil(t, val)
}

func TestParseExifDate(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"2021:06:01 14:30:00", "2021-06-01T14:30:00"},
		{"2021:06:01", "2021-06-01"},
		{"not a date", "not a date"},
		{"  2021:06:01 14:30:00  ", "2021-06-01T14:30:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseExifDate(tt.raw), "raw %q", tt.raw)
	}
}

func TestAsciiOrPlaceholder(t *testing.T) {
	assert.Equal(t, "Canon", asciiOrPlaceholder([]byte("Canon\x00")))
	assert.Equal(t, "(binary)", asciiOrPlaceholder([]byte{0x01, 0x02, 0x03}))
	assert.Equal(t, "", asciiOrPlaceholder(nil))
}
