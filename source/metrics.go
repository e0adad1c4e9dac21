package source

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metricsSource struct {
	next     Source
	opens    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// WithMetrics counts Opens of next by strategy and outcome (ok, absent,
// error) and times them by strategy. The collectors are registered with
// reg; registering twice on the same Registerer fails.
func WithMetrics(next Source, reg prometheus.Registerer) (Source, error) {
	m := &metricsSource{
		next: next,
		opens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imgsource",
			Name:      "open_total",
			Help:      "Stream opens by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imgsource",
			Name:      "open_duration_seconds",
			Help:      "Time until a stream is ready or has failed.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),
	}
	for _, c := range []prometheus.Collector{m.opens, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metricsSource) Open(ctx context.Context, u *url.URL) (io.ReadCloser, bool, error) {
	t0 := time.Now()
	rc, ok, err := m.next.Open(ctx, u)
	strategy := StrategyOther.String()
	if u != nil {
		strategy = Classify(u.Scheme).String()
	}
	m.duration.WithLabelValues(strategy).Observe(time.Since(t0).Seconds())
	m.opens.WithLabelValues(strategy, outcome(ok, err)).Inc()
	return rc, ok, err
}

func outcome(ok bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case !ok:
		return "absent"
	default:
		return "ok"
	}
}
