package controller

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"cooksa_backend/internal/middleware"
	"cooksa_backend/internal/model"
	"cooksa_backend/internal/store"
	"cooksa_backend/pkg/utils/jwt"
)

const (
	minPasswordLength = 6
	guestEmailDomain  = "guest.cooksa.app"
)

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthController struct {
	store  *store.Store
	signer *jwt.Signer
}

func NewAuthController(s *store.Store, signer *jwt.Signer) *AuthController {
	return &AuthController{store: s, signer: signer}
}

func (a *AuthController) Register(c *fiber.Ctx) error {
	input := new(RegisterInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	if _, err := mail.ParseAddress(input.Email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A valid email is required",
		})
	}
	if len(input.Password) < minPasswordLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Password must be at least 6 characters",
		})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not hash password",
		})
	}

	user := model.User{
		Email:       input.Email,
		Password:    string(hashedPassword),
		Type:        model.UserTypeRegular,
		AccountType: model.AccountIndividual,
	}

	if err := a.store.CreateUser(c.UserContext(), &user); err != nil {
		if errors.Is(err, store.ErrEmailUsed) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Email already exists",
			})
		}
		log.Error().Err(err).Msg("Could not create user")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not create user",
		})
	}

	return a.issue(c, fiber.StatusCreated, &user)
}

func (a *AuthController) Login(c *fiber.Ctx) error {
	input := new(LoginInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	user, err := a.store.UserByEmail(c.UserContext(), input.Email)
	if err != nil || user.Type == model.UserTypeGuest {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	return a.issue(c, fiber.StatusOK, user)
}

// Guest creates a throwaway account so anonymous visitors get a session.
func (a *AuthController) Guest(c *fiber.Ctx) error {
	id := uuid.NewString()
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not hash password",
		})
	}

	user := model.User{
		Email:       "guest-" + strings.ReplaceAll(id, "-", "") + "@" + guestEmailDomain,
		Password:    string(hashedPassword),
		Type:        model.UserTypeGuest,
		AccountType: model.AccountIndividual,
	}
	if err := a.store.CreateUser(c.UserContext(), &user); err != nil {
		log.Error().Err(err).Msg("Could not create guest user")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not create guest session",
		})
	}

	return a.issue(c, fiber.StatusCreated, &user)
}

// Session re-issues the token from the stored user, so profile changes
// such as a new avatar reach the client without signing in again.
func (a *AuthController) Session(c *fiber.Ctx) error {
	user, status, msg := a.currentUser(c)
	if user == nil {
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
	return a.issue(c, fiber.StatusOK, user)
}

func (a *AuthController) GetMe(c *fiber.Ctx) error {
	user, status, msg := a.currentUser(c)
	if user == nil {
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
	return c.JSON(fiber.Map{
		"user": user.GetPublicProfile(),
	})
}

// currentUser loads the session's user fresh from the store. On failure
// it returns the status and message to answer with.
func (a *AuthController) currentUser(c *fiber.Ctx) (*model.User, int, string) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return nil, fiber.StatusUnauthorized, "Unauthorized"
	}

	user, err := a.store.UserByID(c.UserContext(), claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fiber.StatusNotFound, "User not found"
	}
	if err != nil {
		log.Error().Err(err).Uint("user_id", claims.UserID).Msg("Could not fetch user")
		return nil, fiber.StatusInternalServerError, "Could not fetch user"
	}
	return user, 0, ""
}

func (a *AuthController) issue(c *fiber.Ctx, status int, user *model.User) error {
	token, err := a.signer.GenerateToken(user.ID, user.Email, string(user.Type), user.AvatarURL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not generate token",
		})
	}

	return c.Status(status).JSON(fiber.Map{
		"token": token,
		"user":  user.GetPublicProfile(),
	})
}
