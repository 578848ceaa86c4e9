package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codescrafter/luxury-backend-sub000/internal/models"
)

// ExtractTokenFromRequest pulls the bearer token out of the Authorization
// header.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}

// ActorFromJWT parses a token without signature verification and returns
// the actor it names. Used on the public verify endpoint to opportunistically
// record who scanned a code; the token there is NOT the authorization, the
// redemption token is.
func ActorFromJWT(tokenString string) (models.Actor, error) {
	if tokenString == "" {
		return models.Actor{}, errors.New("empty token")
	}

	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return models.Actor{}, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Actor{}, errors.New("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return models.Actor{}, errors.New("subject claim not found in token")
	}

	actor := models.Actor{UserID: sub}
	if realmAccess, ok := claims["realm_access"].(map[string]interface{}); ok {
		if rawRoles, ok := realmAccess["roles"].([]interface{}); ok {
			for _, raw := range rawRoles {
				if role, ok := raw.(string); ok {
					actor.Roles = append(actor.Roles, strings.ToUpper(role))
				}
			}
		}
	}
	return actor, nil
}
