//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredits_LazyAccountCreation(t *testing.T) {
	env := SetupTestEnv(t)
	token := AuthToken(t, env, "user-new", false)

	resp := DoRequest(t, env, "GET", "/api/v1/credits/", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseResponse(t, resp)["data"].(map[string]any)

	assert.Equal(t, float64(0), data["balance"])
	assert.Equal(t, false, data["free_credits_granted"])
}

func TestCredits_FreeGrantIdempotent(t *testing.T) {
	env := SetupTestEnv(t)
	token := AuthToken(t, env, "user-grant", false)

	// Lazy-create the account, then age it past the eligibility gate.
	resp := DoRequest(t, env, "GET", "/api/v1/credits/", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	_, err := env.Pool.Exec(context.Background(),
		`UPDATE credit_accounts SET created_at = NOW() - INTERVAL '48 hours' WHERE owner_id = $1`,
		"user-grant")
	require.NoError(t, err)

	resp = DoRequest(t, env, "POST", "/api/v1/credits/grant", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, true, data["granted"])

	resp = DoRequest(t, env, "GET", "/api/v1/credits/", nil, token)
	status := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(10), status["balance"])

	// Second grant is a no-op.
	resp = DoRequest(t, env, "POST", "/api/v1/credits/grant", nil, token)
	data = ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, false, data["granted"])

	resp = DoRequest(t, env, "GET", "/api/v1/credits/", nil, token)
	status = ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(10), status["balance"])
}

func TestCredits_FreeGrantBlockedForYoungAccounts(t *testing.T) {
	env := SetupTestEnv(t)
	token := AuthToken(t, env, "user-young", false)

	resp := DoRequest(t, env, "POST", "/api/v1/credits/grant", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, false, data["granted"])
}

func TestCredits_ResetRequiresAdmin(t *testing.T) {
	env := SetupTestEnv(t)
	userToken := AuthToken(t, env, "user-plain", false)
	adminToken := AuthToken(t, env, "user-admin", true)
	SeedAccount(t, env, "user-reset-target", 3)

	body := map[string]any{"owner_id": "user-reset-target", "new_balance": 50}

	resp := DoRequest(t, env, "POST", "/api/v1/credits/reset", body, userToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "POST", "/api/v1/credits/reset", body, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	targetToken := AuthToken(t, env, "user-reset-target", false)
	resp = DoRequest(t, env, "GET", "/api/v1/credits/", nil, targetToken)
	status := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(50), status["balance"])
}

func TestCredits_TransactionLogRecorded(t *testing.T) {
	env := SetupTestEnv(t)
	token := AuthToken(t, env, "user-txlog", false)
	SeedAccount(t, env, "user-txlog", 5)
	SeedResource(t, env, "res-txlog-1", "IMG_201.jpg", "Tx Log Photo")

	resp := DoRequest(t, env, "POST", "/api/v1/media/res-txlog-1/rename", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "GET", "/api/v1/credits/", nil, token)
	data := ParseResponse(t, resp)["data"].(map[string]any)
	txs := data["recent_transactions"].([]any)
	require.NotEmpty(t, txs)
	last := txs[0].(map[string]any)
	assert.Equal(t, "deduct", last["type"])
	assert.Equal(t, float64(1), last["amount"])
	assert.Equal(t, float64(4), last["balance_after"])
	assert.NotEmpty(t, last["settlement_id"])
}
