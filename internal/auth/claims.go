package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Claims are the identity fields of a JWT session token. They are read
// for display only; the signature is not verified here, the API does that.
type Claims struct {
	Subject   string
	Username  string
	Email     string
	Issuer    string
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry that has passed.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Name returns the most human-readable identity available.
func (c Claims) Name() string {
	switch {
	case c.Email != "":
		return c.Email
	case c.Username != "":
		return c.Username
	default:
		return c.Subject
	}
}

// ParseClaims decodes the payload segment of a JWT. Opaque (non-JWT)
// tokens yield an error.
func ParseClaims(token string) (Claims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("token is not a JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return Claims{}, fmt.Errorf("decode token payload: %w", err)
	}

	var raw struct {
		Sub             string  `json:"sub"`
		Email           string  `json:"email"`
		Username        string  `json:"username"`
		CognitoUsername string  `json:"cognito:username"`
		Iss             string  `json:"iss"`
		Exp             float64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Claims{}, fmt.Errorf("parse token payload: %w", err)
	}

	c := Claims{
		Subject:  raw.Sub,
		Username: raw.Username,
		Email:    raw.Email,
		Issuer:   raw.Iss,
	}
	if c.Username == "" {
		c.Username = raw.CognitoUsername
	}
	if raw.Exp > 0 {
		c.ExpiresAt = time.Unix(int64(raw.Exp), 0).UTC()
	}
	return c, nil
}

// Mask shortens a token for display, keeping only its ends.
func Mask(token string) string {
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + "..." + token[len(token)-4:]
}
