package models

// Platform roles carried in the identity token's roles claim.
const (
	RoleUser    = "USER"
	RolePartner = "PARTNER"
	RoleAdmin   = "ADMIN"
)

// Actor is the resolved identity of an inbound request.
type Actor struct {
	UserID string
	Roles  []string
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool { return a.HasRole(RoleAdmin) }

type M2MConfig struct {
	KeycloakURL   string
	KeycloakRealm string
	ClientID      string
	ClientSecret  string
}

type M2MTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}
