package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"cooksa_backend/internal/middleware"
	"cooksa_backend/internal/store"
	"cooksa_backend/pkg/utils/cloudflare"
	"cooksa_backend/pkg/utils/image"
	"cooksa_backend/pkg/utils/validation"
)

type ProfileController struct {
	store   *store.Store
	objects cloudflare.ObjectStore
	now     func() time.Time
}

// NewProfileController accepts a nil object store; uploads then answer 503.
func NewProfileController(s *store.Store, objects cloudflare.ObjectStore) *ProfileController {
	return &ProfileController{store: s, objects: objects, now: time.Now}
}

func (p *ProfileController) UploadAvatar(c *fiber.Ctx) error {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}
	if p.objects == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Avatar storage is not configured",
		})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded",
		})
	}
	if err := validation.ValidateAvatar(file); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not read file",
		})
	}
	defer src.Close()

	processed, err := image.ProcessAvatar(src)
	if err != nil {
		log.Warn().Err(err).Uint("user_id", claims.UserID).Msg("Avatar rejected")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is not a valid image",
		})
	}

	ctx := c.UserContext()
	user, err := p.store.UserByID(ctx, claims.UserID)
	if err != nil {
		return accountError(c, err)
	}
	previous := user.AvatarURL

	key := cloudflare.AvatarKey(user.ID, file.Filename, processed.Ext, p.now())
	url, err := p.objects.Put(ctx, key, processed.Body, processed.ContentType)
	if err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("Avatar upload failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Upload failed",
		})
	}

	if err := p.store.SetUserAvatarURL(ctx, user.ID, url); err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("Could not save avatar url")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not update avatar",
		})
	}

	if previous != "" && previous != url {
		if err := p.objects.Delete(ctx, previous); err != nil {
			log.Warn().Err(err).Uint("user_id", user.ID).Msg("Error deleting old avatar")
		}
	}

	return c.JSON(fiber.Map{
		"url":     url,
		"message": "Avatar uploaded successfully",
	})
}
