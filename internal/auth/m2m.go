package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/codescrafter/luxury-backend-sub000/internal/models"
)

const (
	m2mTokenKey = "m2m_token"
	// refresh this many seconds before the token actually expires
	tokenExpiryBuffer = 60
)

type cachedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (tc *cachedToken) valid() bool {
	if tc == nil || tc.Token == "" {
		return false
	}
	return time.Now().Add(tokenExpiryBuffer * time.Second).Before(tc.ExpiresAt)
}

// M2MTokenSource fetches client-credentials tokens from Keycloak and
// caches them in Redis so every catalog call does not round-trip to the
// identity provider.
type M2MTokenSource struct {
	Config     models.M2MConfig
	HTTPClient *http.Client
	Redis      *redis.Client
}

func NewM2MTokenSource(cfg models.M2MConfig, client *http.Client, redisClient *redis.Client) *M2MTokenSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &M2MTokenSource{Config: cfg, HTTPClient: client, Redis: redisClient}
}

// Token returns a valid service-to-service bearer token, from cache when
// possible.
func (s *M2MTokenSource) Token(ctx context.Context) (string, error) {
	if cached := s.getCached(ctx); cached != nil {
		return cached.Token, nil
	}

	token, expiresIn, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	s.setCached(ctx, token, expiresIn)
	return token, nil
}

func (s *M2MTokenSource) fetch(ctx context.Context) (string, int, error) {
	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", s.Config.KeycloakURL, s.Config.KeycloakRealm)

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", s.Config.ClientID)
	data.Set("client_secret", s.Config.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("failed to get M2M token, status %s: %s", resp.Status, string(body))
	}

	var tokenResp models.M2MTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", 0, err
	}
	return tokenResp.AccessToken, tokenResp.ExpiresIn, nil
}

func (s *M2MTokenSource) getCached(ctx context.Context) *cachedToken {
	if s.Redis == nil {
		return nil
	}
	raw, err := s.Redis.Get(ctx, m2mTokenKey).Result()
	if err != nil {
		return nil
	}
	var tc cachedToken
	if err := json.Unmarshal([]byte(raw), &tc); err != nil {
		return nil
	}
	if !tc.valid() {
		return nil
	}
	return &tc
}

func (s *M2MTokenSource) setCached(ctx context.Context, token string, expiresIn int) {
	if s.Redis == nil || expiresIn <= 0 {
		return
	}
	tc := cachedToken{
		Token:     token,
		ExpiresAt: time.Now().Add(time.Duration(expiresIn) * time.Second),
	}
	raw, err := json.Marshal(tc)
	if err != nil {
		return
	}
	s.Redis.Set(ctx, m2mTokenKey, raw, time.Duration(expiresIn)*time.Second)
}
