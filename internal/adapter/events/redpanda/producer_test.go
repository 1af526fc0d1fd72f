package redpanda

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no seed brokers")
}

func TestDetectionRecord_Shape(t *testing.T) {
	ev := domain.DetectionEvent{
		PUUID:           "p-1",
		OverallScore:    0.9135,
		Confidence:      domain.ConfidenceHigh,
		AnalysisVersion: "2.1.0",
		DetectedAt:      time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}

	rec, err := detectionRecord(TopicDetections, ev)
	require.NoError(t, err)

	assert.Equal(t, "smurf.detections", rec.Topic)
	assert.Equal(t, []byte("p-1"), rec.Key)

	headers := map[string]string{}
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "high", headers["confidence"])
	assert.Equal(t, "2.1.0", headers["analysis_version"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, "p-1", decoded["puuid"])
	assert.Equal(t, 0.9135, decoded["overall_score"])
	assert.Equal(t, "high", decoded["confidence"])
	assert.Equal(t, "2.1.0", decoded["analysis_version"])
	assert.Contains(t, decoded, "detected_at")
}
