//go:build integration
// +build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/lizardjazz1/morning-quiz-bot/internal/auth/jwt"
)

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func baseURL() string {
	return envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")
}

// operatorToken signs a token with the bot's secret, skipping the test when
// the control API is not configured.
func operatorToken(t *testing.T) string {
	t.Helper()

	secret := os.Getenv("OPERATOR_JWT_SECRET")
	if secret == "" {
		t.Skip("OPERATOR_JWT_SECRET not set")
	}
	manager, err := jwt.NewManager(jwt.TokenConfig{
		Secret: []byte(secret),
		Issuer: envOrDefault("OPERATOR_JWT_ISSUER", "morning-quiz-bot"),
	})
	if err != nil {
		t.Fatalf("create token manager: %v", err)
	}
	token, err := manager.Generate("integration", jwt.RoleOperator)
	if err != nil {
		t.Fatalf("sign operator token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, method, path, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, fmt.Sprintf("%s%s", baseURL(), path), nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()

	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
