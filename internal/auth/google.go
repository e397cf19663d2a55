package auth

import (
	"context"
	"errors"

	"google.golang.org/api/idtoken"
)

var ErrInvalidGoogleToken = errors.New("invalid google id token")

// GoogleUserInfo verified Google account data.
type GoogleUserInfo struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// GoogleAuthenticator validates Google ID tokens for the login flow.
type GoogleAuthenticator struct {
	clientID string
}

func NewGoogleAuthenticator(clientID string) *GoogleAuthenticator {
	return &GoogleAuthenticator{clientID: clientID}
}

// VerifyIDToken validates the token and requires a verified email.
func (g *GoogleAuthenticator) VerifyIDToken(ctx context.Context, token string) (*GoogleUserInfo, error) {
	payload, err := idtoken.Validate(ctx, token, g.clientID)
	if err != nil {
		return nil, ErrInvalidGoogleToken
	}

	verified, _ := payload.Claims["email_verified"].(bool)
	if !verified {
		return nil, errors.New("email not verified")
	}

	return &GoogleUserInfo{
		ID:      payload.Subject,
		Email:   stringClaim(payload.Claims, "email"),
		Name:    stringClaim(payload.Claims, "name"),
		Picture: stringClaim(payload.Claims, "picture"),
	}, nil
}

func stringClaim(claims map[string]interface{}, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}
