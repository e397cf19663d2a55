package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"drawboard-backend/internal/auth"
	"drawboard-backend/internal/model"
)

// AuthHandler Google login, token refresh and profile lookup.
type AuthHandler struct {
	db           *gorm.DB
	jwtManager   *auth.JWTManager
	googleAuth   *auth.GoogleAuthenticator
	secureCookie bool
}

func NewAuthHandler(db *gorm.DB, jwtManager *auth.JWTManager, googleAuth *auth.GoogleAuthenticator, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		db:           db,
		jwtManager:   jwtManager,
		googleAuth:   googleAuth,
		secureCookie: secureCookie,
	}
}

type GoogleLoginRequest struct {
	IDToken string `json:"id_token"`
}

type AuthResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresIn   int64        `json:"expires_in"`
}

type UserResponse struct {
	ID         int64   `json:"id"`
	Email      string  `json:"email"`
	Nickname   string  `json:"nickname"`
	ProfileImg *string `json:"profile_img,omitempty"`
	Provider   *string `json:"provider,omitempty"`
}

// GoogleLogin verifies a Google ID token and upserts the user.
func (h *AuthHandler) GoogleLogin(c *fiber.Ctx) error {
	var req GoogleLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.IDToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "id_token is required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	googleUser, err := h.googleAuth.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid google token",
		})
	}

	var user model.User
	result := h.db.Where("email = ?", googleUser.Email).First(&user)

	provider := "google"
	if result.Error == gorm.ErrRecordNotFound {
		user = model.User{
			Email:      googleUser.Email,
			Nickname:   googleUser.Name,
			ProfileImg: &googleUser.Picture,
			Provider:   &provider,
			ProviderID: &googleUser.ID,
		}
		if err := h.db.Create(&user).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to create user",
			})
		}
	} else if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	} else {
		user.ProfileImg = &googleUser.Picture
		if user.Provider == nil || *user.Provider != "google" {
			user.Provider = &provider
			user.ProviderID = &googleUser.ID
		}
		h.db.Save(&user)
	}

	accessToken, err := h.jwtManager.GenerateAccessToken(user.ID, user.Email, user.Nickname)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate token",
		})
	}

	refreshToken, err := h.jwtManager.GenerateRefreshToken(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate refresh token",
		})
	}

	// Refresh token travels as an HTTP-only cookie.
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		Secure:   h.secureCookie,
		HTTPOnly: true,
		SameSite: "Lax",
	})

	return c.JSON(AuthResponse{
		User: UserResponse{
			ID:         user.ID,
			Email:      user.Email,
			Nickname:   user.Nickname,
			ProfileImg: user.ProfileImg,
			Provider:   user.Provider,
		},
		AccessToken: accessToken,
		ExpiresIn:   3600,
	})
}

// RefreshToken exchanges a refresh-token cookie for a new access token.
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	refreshToken := c.Cookies("refresh_token")
	if refreshToken == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "refresh token not found",
		})
	}

	userID, err := h.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		c.Cookie(&fiber.Cookie{
			Name:     "refresh_token",
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Secure:   h.secureCookie,
			HTTPOnly: true,
		})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid or expired refresh token",
		})
	}

	var user model.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "user not found",
		})
	}

	accessToken, err := h.jwtManager.GenerateAccessToken(user.ID, user.Email, user.Nickname)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate token",
		})
	}

	return c.JSON(fiber.Map{
		"access_token": accessToken,
		"expires_in":   3600,
	})
}

// Logout clears the refresh-token cookie.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.secureCookie,
		HTTPOnly: true,
	})

	return c.JSON(fiber.Map{
		"message": "logged out successfully",
	})
}

// GetMe returns the authenticated user's profile.
func (h *AuthHandler) GetMe(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	var user model.User
	if err := h.db.First(&user, "id = ?", claims.UserID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "user not found",
		})
	}

	return c.JSON(UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		Nickname:   user.Nickname,
		ProfileImg: user.ProfileImg,
		Provider:   user.Provider,
	})
}
