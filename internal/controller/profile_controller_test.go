package controller_test

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cooksa_backend/internal/controller"
	"cooksa_backend/internal/middleware"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, token, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/avatar/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUploadAvatarReplacesPrevious(t *testing.T) {
	ts := newTestServer(t)
	u := ts.createUser(t, "pic@example.com")
	token := ts.token(t, u)

	status, body := ts.do(t, uploadRequest(t, token, "My Photo.png", "image/png", pngBytes(t)))
	require.Equal(t, http.StatusOK, status)
	first := body["url"].(string)
	assert.Equal(t, "Avatar uploaded successfully", body["message"])
	assert.True(t, strings.HasPrefix(first, fmt.Sprintf("https://cdn.cooksa.test/avatars/%d/", u.ID)), first)
	assert.True(t, strings.HasSuffix(first, "-my-photo.png"), first)
	assert.Equal(t, first, ts.user(t, u.ID).AvatarURL)

	status, body = ts.do(t, uploadRequest(t, token, "second.png", "image/png", pngBytes(t)))
	require.Equal(t, http.StatusOK, status)
	second := body["url"].(string)

	assert.NotEqual(t, first, second)
	assert.Equal(t, second, ts.user(t, u.ID).AvatarURL)
	assert.Equal(t, []string{first}, ts.objects.deleted)
}

func TestUploadAvatarValidation(t *testing.T) {
	ts := newTestServer(t)
	u := ts.createUser(t, "bad@example.com")
	token := ts.token(t, u)

	t.Run("wrong type", func(t *testing.T) {
		status, body := ts.do(t, uploadRequest(t, token, "notes.txt", "text/plain", []byte("hello")))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, body["error"], "invalid file type")
	})

	t.Run("too large", func(t *testing.T) {
		big := make([]byte, 5*1024*1024+1)
		status, body := ts.do(t, uploadRequest(t, token, "big.png", "image/png", big))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, body["error"], "file too large")
	})

	t.Run("not an image", func(t *testing.T) {
		status, body := ts.do(t, uploadRequest(t, token, "fake.png", "image/png", []byte("definitely not png")))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "File is not a valid image", body["error"])
	})

	t.Run("missing file", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/api/avatar/upload", token, map[string]any{})
		status, body := ts.do(t, req)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "No file uploaded", body["error"])
	})

	assert.Empty(t, ts.user(t, u.ID).AvatarURL)
}

func TestUploadAvatarWithoutStorage(t *testing.T) {
	ts := newTestServer(t)
	u := ts.createUser(t, "nostore@example.com")

	app := fiber.New()
	app.Post("/api/avatar/upload", middleware.AuthMiddleware(ts.signer), controller.NewProfileController(ts.store, nil).UploadAvatar)

	resp, err := app.Test(uploadRequest(t, ts.token(t, u), "a.png", "image/png", pngBytes(t)), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
