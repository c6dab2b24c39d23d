package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serialscope/pkg/protocol"
)

func TestCountersAccumulate(t *testing.T) {
	before := testutil.ToFloat64(records.WithLabelValues("point"))
	RecordEvent(protocol.EventPoint)
	RecordEvent(protocol.EventPoint)
	assert.Equal(t, before+2, testutil.ToFloat64(records.WithLabelValues("point")))

	beforeBytes := testutil.ToFloat64(bytesIn)
	RecordBytes(42)
	assert.Equal(t, beforeBytes+42, testutil.ToFloat64(bytesIn))

	SetPaused(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(paused))
	SetPaused(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(paused))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordMessage(protocol.LevelWarning)
	RecordSamples("Ch 1", 3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `serialscope_parser_messages_total{level="warning"}`)
	assert.Contains(t, string(body), `serialscope_scope_samples_total{channel="Ch 1"}`)
}
