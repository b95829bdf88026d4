package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventDeserialization(t *testing.T) {
	resourceID := uuid.New().String()

	event := Event{
		OwnerID:    "user-42",
		EventType:  "rename_completed",
		Severity:   "info",
		ResourceID: resourceID,
		Details:    "renamed to golden-retriever-puppy",
		Timestamp:  time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "user-42", decoded.OwnerID)
	assert.Equal(t, "rename_completed", decoded.EventType)
	assert.Equal(t, "info", decoded.Severity)
	assert.Equal(t, resourceID, decoded.ResourceID)
	assert.Equal(t, "renamed to golden-retriever-puppy", decoded.Details)
}

func TestConvertEventToLog(t *testing.T) {
	ts := time.Now().UTC().Truncate(time.Second)
	event := Event{
		OwnerID:    "user-42",
		EventType:  "fallback_triggered",
		Severity:   "warn",
		ResourceID: "img-4312",
		Details:    "AI naming unavailable, used metadata",
		Timestamp:  ts,
	}

	log := convertEventToLog(event)

	assert.NotEqual(t, uuid.Nil, log.ID)
	assert.Equal(t, "user-42", log.OwnerID)
	assert.Equal(t, "fallback_triggered", log.EventType)
	assert.Equal(t, "warn", log.Severity)
	assert.Equal(t, "img-4312", log.ResourceID)
	assert.Equal(t, ts, log.CreatedAt)

	var details map[string]string
	require.NoError(t, json.Unmarshal(log.Details, &details))
	assert.Equal(t, "AI naming unavailable, used metadata", details["message"])
}

func TestConvertEventToLog_EmptyResourceID(t *testing.T) {
	event := Event{
		OwnerID:   "user-42",
		EventType: "ai_disabled",
		Severity:  "error",
		Details:   "credentials rejected by provider",
		Timestamp: time.Now().UTC(),
	}

	log := convertEventToLog(event)
	assert.Empty(t, log.ResourceID)

	var details map[string]string
	require.NoError(t, json.Unmarshal(log.Details, &details))
	assert.Equal(t, "credentials rejected by provider", details["message"])
}

func TestDefaultListParams(t *testing.T) {
	params := DefaultListParams()
	assert.Equal(t, 1, params.Page)
	assert.Equal(t, 20, params.PageSize)
	assert.Empty(t, params.EventType)
	assert.Empty(t, params.Severity)
}
