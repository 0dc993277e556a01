package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.Answer(OutcomeAnswered)
	r.Answer(OutcomeAnswered)
	r.Answer(OutcomeMalformed)
	r.DroppedSources(2)
	r.DroppedSources(0)
	r.UnsourcedAnswer()
	r.Indexed(7)
	r.Retrieval(20*time.Millisecond, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.answers.WithLabelValues(OutcomeAnswered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.answers.WithLabelValues(OutcomeMalformed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.droppedSources))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.unsourcedAnswers))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.indexedChunks))

	n, err := testutil.GatherAndCount(reg, "docqa_retrieval_duration_seconds", "docqa_retrieved_chunks")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Answer(OutcomeRefused)
		r.DroppedSources(1)
		r.UnsourcedAnswer()
		r.Retrieval(time.Second, 1)
		r.Indexed(1)
	})
}
