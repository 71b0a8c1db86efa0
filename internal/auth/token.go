package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's
// Authorization header.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// ExtractActorFromJWT reads the actor identity out of a token's claims:
// the 'sub' claim plus the operator's shop list and role. Signature
// verification happens in the OIDC middleware, not here.
func ExtractActorFromJWT(tokenString string) (Actor, error) {
	if tokenString == "" {
		return Actor{}, errors.New("empty token")
	}

	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return Actor{}, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Actor{}, errors.New("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Actor{}, errors.New("subject claim not found in token")
	}

	actor := Actor{ID: sub}

	if role, ok := claims["role"].(string); ok {
		actor.Role = role
	}

	if rawShops, ok := claims["shops"].([]interface{}); ok {
		for _, raw := range rawShops {
			if shop, ok := raw.(string); ok {
				actor.Shops = append(actor.Shops, shop)
			}
		}
	}

	return actor, nil
}
