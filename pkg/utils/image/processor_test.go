package image

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
	img.SetColorIndex(1, 1, 1)
	return img
}

func TestProcessAvatarReencodesPNG(t *testing.T) {
	var src bytes.Buffer
	require.NoError(t, png.Encode(&src, testImage()))

	out, err := ProcessAvatar(&src)
	require.NoError(t, err)
	assert.Equal(t, "image/png", out.ContentType)
	assert.Equal(t, ".png", out.Ext)

	_, format, err := image.Decode(out.Body)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

func TestProcessAvatarKeepsGIF(t *testing.T) {
	var src bytes.Buffer
	require.NoError(t, gif.Encode(&src, testImage(), nil))
	raw := append([]byte(nil), src.Bytes()...)

	out, err := ProcessAvatar(&src)
	require.NoError(t, err)
	assert.Equal(t, "image/gif", out.ContentType)
	assert.Equal(t, raw, out.Body.Bytes())
}

func TestProcessAvatarRejectsGarbage(t *testing.T) {
	_, err := ProcessAvatar(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}
