package wire_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Garmelon/tablejohn/internal/wire"
)

func TestOutputLineRoundTrip(t *testing.T) {
	line := wire.OutputLine{Source: wire.SourceStderr, Text: "boom"}

	data, err := json.Marshal(line)
	require.NoError(t, err)
	assert.JSONEq(t, `[2, "boom"]`, string(data))

	var decoded wire.OutputLine

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, line, decoded)
}

func TestWorkerStatusIdleOmitsRunFields(t *testing.T) {
	data, err := json.Marshal(wire.Idle())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"idle"}`, string(data))
}

func TestWorkerStatusWorkingRoundTrip(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	status := wire.Working(wire.UnfinishedRun{
		ID:          "r-abc",
		Hash:        "deadbeef",
		BenchMethod: "internal",
		Start:       start,
		LastOutput:  []wire.OutputLine{{Source: wire.SourceStdout, Text: "hi"}},
	})

	data, err := json.Marshal(status)
	require.NoError(t, err)

	var decoded wire.WorkerStatus

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "working", decoded.Type)
	assert.Equal(t, "r-abc", decoded.ID)
	assert.True(t, decoded.Start.Equal(start))
	assert.Len(t, decoded.LastOutput, 1)
}

func TestBenchMethodJSON(t *testing.T) {
	data, err := json.Marshal(wire.Repo("cafe"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"repo","hash":"cafe"}`, string(data))

	data, err = json.Marshal(wire.Internal())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"internal"}`, string(data))
}

func TestServerResponseOmitsRunWhenNil(t *testing.T) {
	data, err := json.Marshal(wire.ServerResponse{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}
