package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"chainbill-backend/config"
	"chainbill-backend/database"
	"chainbill-backend/internal/apperr"
	"chainbill-backend/internal/domain/projects"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	AuthMethodAPIKey = "api_key"
	AuthMethodBearer = "bearer"
)

var (
	verifierMu     sync.Mutex
	cachedVerifier *oidc.IDTokenVerifier
)

// bearerVerifier builds (once, then caches) the OIDC verifier. The provider
// caches the published signing keys after the first successful fetch, so only
// the first bearer request pays for the discovery round trip.
func bearerVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	verifierMu.Lock()
	defer verifierMu.Unlock()
	if cachedVerifier != nil {
		return cachedVerifier, nil
	}

	provider, err := oidc.NewProvider(ctx, config.OIDC_ISSUER)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	cachedVerifier = provider.Verifier(&oidc.Config{ClientID: config.OIDC_AUDIENCE})
	return cachedVerifier, nil
}

// AuthMiddleware resolves caller identity before any mutation runs. Two
// mutually exclusive trust paths:
//
//   - X-API-Key: long-lived server-to-server secret looked up in the api_keys
//     table; deliberately outside the nonce/timestamp replay scope.
//   - Authorization Bearer: a token from the external identity provider,
//     verified against its cached signing keys (or, when AUTH_DEV_SECRET is
//     set, a first-party HS256 token for local development and tests).
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-API-Key"); key != "" {
			apiKeyAuth(c, key)
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			apperr.Abort(c, apperr.Authf("Authorization header missing"))
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			apperr.Abort(c, apperr.Authf("Bearer token malformed"))
			return
		}
		bearerAuth(c, tokenString)
	}
}

func apiKeyAuth(c *gin.Context, key string) {
	var apiKey projects.APIKey
	err := database.DB.Preload("Project").
		Where("key = ? AND active = ?", key, true).
		First(&apiKey).Error
	if err != nil {
		apperr.Abort(c, apperr.Authf("Invalid API key"))
		return
	}

	c.Set("auth_method", AuthMethodAPIKey)
	c.Set("project_id", apiKey.ProjectID)
	c.Set("developer_id", apiKey.Project.DeveloperID)
	c.Next()
}

func bearerAuth(c *gin.Context, tokenString string) {
	var claims map[string]interface{}
	var err error
	if config.AUTH_DEV_SECRET != "" {
		claims, err = devTokenClaims(tokenString)
	} else {
		claims, err = providerTokenClaims(c.Request.Context(), tokenString)
	}
	if err != nil {
		apperr.Abort(c, apperr.Authf("Invalid or expired token"))
		return
	}

	email, err := identityFromClaims(claims)
	if err != nil {
		apperr.Abort(c, apperr.Authf("Token carries no usable identity"))
		return
	}

	c.Set("auth_method", AuthMethodBearer)
	c.Set("email", email)
	if wallet := walletFromClaims(claims); wallet != "" {
		c.Set("smart_account", wallet)
	}
	c.Next()
}

func providerTokenClaims(ctx context.Context, tokenString string) (map[string]interface{}, error) {
	verifier, err := bearerVerifier(ctx)
	if err != nil {
		return nil, err
	}
	idToken, err := verifier.Verify(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func devTokenClaims(tokenString string) (map[string]interface{}, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.AUTH_DEV_SECRET), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", token.Claims)
	}
	return map[string]interface{}(mapClaims), nil
}

// identityFromClaims extracts the caller's email from an untrusted claim set.
// Depending on how the user signed in at the identity provider, the address
// shows up as a direct claim, inside a nested userInfo object, or as a
// JSON-encoded string inside that claim. Shapes are tried in order.
func identityFromClaims(claims map[string]interface{}) (string, error) {
	if email, ok := claims["email"].(string); ok && email != "" {
		return email, nil
	}

	for _, key := range []string{"userInfo", "oauthUserInfo"} {
		raw, ok := claims[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case map[string]interface{}:
			if email, ok := v["email"].(string); ok && email != "" {
				return email, nil
			}
		case string:
			var nested struct {
				Email string `json:"email"`
			}
			if err := json.Unmarshal([]byte(v), &nested); err == nil && nested.Email != "" {
				return nested.Email, nil
			}
		}
	}

	return "", fmt.Errorf("no email claim in any known shape")
}

// walletFromClaims pulls the user's smart-account address from the wallets
// claim when present. Absence is fine; not every login carries one.
func walletFromClaims(claims map[string]interface{}) string {
	wallets, ok := claims["wallets"].([]interface{})
	if !ok {
		return ""
	}
	for _, w := range wallets {
		entry, ok := w.(map[string]interface{})
		if !ok {
			continue
		}
		if addr, ok := entry["address"].(string); ok && addr != "" {
			return addr
		}
	}
	return ""
}
