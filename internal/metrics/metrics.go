package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "docqa"

// Answer outcomes recorded by the validator.
const (
	OutcomeAnswered  = "answered"
	OutcomeRefused   = "refused"
	OutcomeNoContext = "no_context"
	OutcomeMalformed = "malformed"
)

// Recorder holds the grounding and retrieval collectors. A nil *Recorder
// is valid and records nothing.
type Recorder struct {
	answers          *prometheus.CounterVec
	droppedSources   prometheus.Counter
	unsourcedAnswers prometheus.Counter
	retrievalLatency prometheus.Histogram
	retrievedChunks  prometheus.Histogram
	indexedChunks    prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		answers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Validated answers by outcome.",
		}, []string{"outcome"}),
		droppedSources: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_sources_total",
			Help:      "Citations dropped because they did not reference a retrieved chunk.",
		}),
		unsourcedAnswers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unsourced_answers_total",
			Help:      "Non-refusal answers left with no valid source.",
		}),
		retrievalLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Time spent embedding the query and searching the index.",
			Buckets:   prometheus.DefBuckets,
		}),
		retrievedChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_chunks",
			Help:      "Chunks returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 20},
		}),
		indexedChunks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_chunks_total",
			Help:      "Chunks written to the similarity index.",
		}),
	}
}

func (r *Recorder) Answer(outcome string) {
	if r == nil {
		return
	}
	r.answers.WithLabelValues(outcome).Inc()
}

func (r *Recorder) DroppedSources(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.droppedSources.Add(float64(n))
}

func (r *Recorder) UnsourcedAnswer() {
	if r == nil {
		return
	}
	r.unsourcedAnswers.Inc()
}

func (r *Recorder) Retrieval(elapsed time.Duration, results int) {
	if r == nil {
		return
	}
	r.retrievalLatency.Observe(elapsed.Seconds())
	r.retrievedChunks.Observe(float64(results))
}

func (r *Recorder) Indexed(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.indexedChunks.Add(float64(n))
}
