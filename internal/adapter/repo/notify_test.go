package repo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/domain"
)

func TestDecodeTaskEventRoundTrip(t *testing.T) {
	at := time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)
	sent := domain.TaskEvent{
		TaskID:  "t-1",
		OwnerID: "u-1",
		Type:    domain.TaskTypeImage,
		Status:  domain.TaskStatusFailed,
		Error:   "processing deadline exceeded",
		At:      at,
	}
	payload, err := json.Marshal(sent)
	require.NoError(t, err)

	got, err := decodeTaskEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, sent, got)
}

func TestDecodeTaskEventRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: `LISTEN?`},
		{name: "missing task id", payload: `{"owner_id":"u-1","status":"failed"}`},
		{name: "missing owner id", payload: `{"task_id":"t-1","status":"failed"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeTaskEvent([]byte(tc.payload))
			assert.Error(t, err)
		})
	}
}
