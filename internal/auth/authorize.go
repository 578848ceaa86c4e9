package auth

import (
	"strings"

	"github.com/codescrafter/luxury-backend-sub000/internal/apperr"
	"github.com/codescrafter/luxury-backend-sub000/internal/models"
)

// Require is the explicit authorization gate invoked at the top of each
// handler: the actor must hold at least one of the given roles. Ownership
// checks stay in the services, next to the state guards they protect.
func Require(actor models.Actor, roles ...string) error {
	if actor.UserID == "" {
		return apperr.Forbidden("request is not authenticated")
	}
	if len(roles) == 0 {
		return nil
	}
	for _, role := range roles {
		if actor.HasRole(role) {
			return nil
		}
	}
	return apperr.Forbidden("requires one of roles: %s", strings.Join(roles, ", "))
}
