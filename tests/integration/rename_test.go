//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRename_AIFlow(t *testing.T) {
	env := SetupTestEnv(t)
	token := AuthToken(t, env, "user-ai-flow", false)
	SeedAccount(t, env, "user-ai-flow", 5)
	SeedResource(t, env, "res-ai-1", "IMG_001.jpg", "Golden Retriever")

	settlementBefore := env.Settlement.Calls.Load()

	resp := DoRequest(t, env, "POST", "/api/v1/media/res-ai-1/rename", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)

	assert.Equal(t, true, data["success"])
	assert.Equal(t, "ai", data["method"])
	assert.Equal(t, "golden-retriever-puppy", data["selected_name"])
	assert.Equal(t, float64(1), data["credits_used"])
	assert.Equal(t, settlementBefore+1, env.Settlement.Calls.Load())

	// Balance dropped by one.
	resp = DoRequest(t, env, "GET", "/api/v1/credits/", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(4), status["balance"])

	// History recorded the operation.
	resp = DoRequest(t, env, "GET", "/api/v1/media/res-ai-1/history", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := ParseResponse(t, resp)["data"].(map[string]any)["history"].([]any)
	require.Len(t, history, 1)
	assert.Equal(t, "ai", history[0].(map[string]any)["method"])
}

func TestRename_ManualIsFree(t *testing.T) {
	env := SetupTestEnv(t)
	token := AuthToken(t, env, "user-manual", false)
	SeedAccount(t, env, "user-manual", 2)
	SeedResource(t, env, "res-manual-1", "IMG_002.jpg", "Some Photo")

	body := map[string]string{"selected_name": "my-own-name"}
	resp := DoRequest(t, env, "POST", "/api/v1/media/res-manual-1/rename", body, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseResponse(t, resp)["data"].(map[string]any)

	assert.Equal(t, true, data["success"])
	assert.Equal(t, "manual", data["method"])
	assert.Equal(t, float64(0), data["credits_used"])

	resp = DoRequest(t, env, "GET", "/api/v1/credits/", nil, token)
	status := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(2), status["balance"])
}

func TestRename_InsufficientCredits(t *testing.T) {
	env := SetupTestEnv(t)
	token := AuthToken(t, env, "user-broke", false)
	SeedAccount(t, env, "user-broke", 0)
	SeedResource(t, env, "res-broke-1", "IMG_003.jpg", "Another Photo")

	resp := DoRequest(t, env, "POST", "/api/v1/media/res-broke-1/rename", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseResponse(t, resp)["data"].(map[string]any)

	assert.Equal(t, false, data["success"])
	assert.Equal(t, "credit_error", data["error_kind"])
	assert.Equal(t, true, data["manual_path_available"])
}

func TestSuggest_SecondCallHitsCache(t *testing.T) {
	env := SetupTestEnv(t)
	token := AuthToken(t, env, "user-suggest", false)
	SeedResource(t, env, "res-suggest-1", "IMG_004.jpg", "Cached Photo")

	callsBefore := env.NameGen.GenerateCalls.Load()

	resp := DoRequest(t, env, "GET", "/api/v1/media/res-suggest-1/suggestions", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, false, data["cache_hit"])
	assert.Len(t, data["suggestions"].([]any), 2)

	resp = DoRequest(t, env, "GET", "/api/v1/media/res-suggest-1/suggestions", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data = ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, true, data["cache_hit"])

	assert.Equal(t, callsBefore+1, env.NameGen.GenerateCalls.Load())
}

func TestRenameBulk_ShortCircuit(t *testing.T) {
	env := SetupTestEnv(t)
	token := AuthToken(t, env, "user-bulk", false)
	SeedAccount(t, env, "user-bulk", 2)
	for i := 1; i <= 4; i++ {
		SeedResource(t, env, fmt.Sprintf("res-bulk-%d", i), fmt.Sprintf("IMG_10%d.jpg", i), fmt.Sprintf("Bulk Photo %d", i))
	}

	body := map[string]any{
		"resource_ids": []string{"res-bulk-1", "res-bulk-2", "res-bulk-3", "res-bulk-4"},
	}
	resp := DoRequest(t, env, "POST", "/api/v1/media/rename-bulk", body, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseResponse(t, resp)["data"].(map[string]any)

	summary := data["summary"].(map[string]any)
	assert.Equal(t, float64(4), summary["total"])
	assert.Equal(t, float64(2), summary["successful"])
	assert.Equal(t, float64(2), summary["failed"])

	results := data["results"].([]any)
	require.Len(t, results, 4)
	last := results[3].(map[string]any)
	assert.Equal(t, false, last["success"])
	assert.Equal(t, "credit_error", last["error_kind"])
}

func TestRename_RateLimited(t *testing.T) {
	env := SetupTestEnv(t)
	token := AuthToken(t, env, "user-limited", false)
	SeedResource(t, env, "res-limited-1", "IMG_005.jpg", "Limited Photo")

	// The test environment allows 5 single operations per window.
	for i := 0; i < 5; i++ {
		body := map[string]string{"selected_name": fmt.Sprintf("name-%d", i)}
		resp := DoRequest(t, env, "POST", "/api/v1/media/res-limited-1/rename", body, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp := DoRequest(t, env, "POST", "/api/v1/media/res-limited-1/rename",
		map[string]string{"selected_name": "one-too-many"}, token)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	resp.Body.Close()
}

func TestRename_Unauthenticated(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "POST", "/api/v1/media/res-x/rename", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestRename_SettlementRetriesTransientFailure(t *testing.T) {
	env := SetupTestEnv(t)
	token := AuthToken(t, env, "user-retry", false)
	SeedAccount(t, env, "user-retry", 5)
	SeedResource(t, env, "res-retry-1", "IMG_006.jpg", "Retry Photo")

	env.Settlement.Fail503.Store(2)

	resp := DoRequest(t, env, "POST", "/api/v1/media/res-retry-1/rename", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, true, data["success"])

	resp = DoRequest(t, env, "GET", "/api/v1/credits/", nil, token)
	status := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(4), status["balance"])
}
