package validation

import (
	"errors"
	"mime/multipart"
	"strings"
)

var (
	ErrFileSize     = errors.New("file too large, maximum size is 5MB")
	ErrFileType     = errors.New("invalid file type, allowed types: JPEG, PNG, WEBP, GIF")
	ErrFileRequired = errors.New("no file provided")
)

const MaxAvatarSize = 5 * 1024 * 1024

var AllowedAvatarTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ValidateAvatar checks the declared size and MIME type of an upload.
func ValidateAvatar(file *multipart.FileHeader) error {
	if file == nil {
		return ErrFileRequired
	}

	if file.Size > MaxAvatarSize {
		return ErrFileSize
	}

	contentType := strings.ToLower(strings.TrimSpace(file.Header.Get("Content-Type")))
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !AllowedAvatarTypes[contentType] {
		return ErrFileType
	}

	return nil
}
