package image

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/chai2010/webp"
)

// Processed is an upload ready to store.
type Processed struct {
	Body        *bytes.Buffer
	ContentType string
	Ext         string
}

// ProcessAvatar re-encodes jpeg, png and webp images, which drops
// embedded metadata. GIFs are kept byte for byte so animation survives.
func ProcessAvatar(src io.Reader) (*Processed, error) {
	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("could not read file: %w", err)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("could not decode image: %w", err)
	}
	if format == "gif" {
		return &Processed{Body: bytes.NewBuffer(raw), ContentType: "image/gif", Ext: ".gif"}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("could not decode image: %w", err)
	}

	buf := new(bytes.Buffer)
	ext := "." + format
	switch format {
	case "jpeg":
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: 85})
		ext = ".jpg"
	case "png":
		err = png.Encode(buf, img)
	case "webp":
		err = webp.Encode(buf, img, &webp.Options{Lossless: false, Quality: 85})
	default:
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}

	if err != nil {
		return nil, fmt.Errorf("could not encode image: %w", err)
	}

	return &Processed{Body: buf, ContentType: "image/" + format, Ext: ext}, nil
}
