package controller

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"cooksa_backend/pkg/content"
)

type ContentSource interface {
	Countries(ctx context.Context) ([]content.Country, error)
	Country(ctx context.Context, id string) (*content.Country, error)
}

type ContentController struct {
	source ContentSource
}

func NewContentController(source ContentSource) *ContentController {
	return &ContentController{source: source}
}

func (cc *ContentController) ListCountries(c *fiber.Ctx) error {
	countries, err := cc.source.Countries(c.UserContext())
	if err != nil {
		log.Error().Err(err).Msg("Could not fetch countries")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Could not fetch countries",
		})
	}
	return c.JSON(fiber.Map{
		"countries": countries,
	})
}

func (cc *ContentController) GetCountry(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Country id is required",
		})
	}

	country, err := cc.source.Country(c.UserContext(), id)
	if errors.Is(err, content.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Country not found",
		})
	}
	if err != nil {
		log.Error().Err(err).Str("country_id", id).Msg("Could not fetch country")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Could not fetch country",
		})
	}
	return c.JSON(fiber.Map{
		"country": country,
	})
}
