package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the application counters. All of them are monotonic; the
// click drop/discard counters exist because the ingestion path trades
// accuracy for redirect availability and that loss must stay observable.
type Metrics struct {
	Redirects       prometheus.Counter
	LinksCreated    prometheus.Counter
	LinksSwept      prometheus.Counter
	ClicksPublished prometheus.Counter
	ClicksDropped   prometheus.Counter
	ClicksIngested  prometheus.Counter
	ClicksDiscarded prometheus.Counter
}

// New registers the application counters on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Redirects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linktoolkit_redirects_total",
			Help: "Successful alias resolutions that produced a redirect.",
		}),
		LinksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linktoolkit_links_created_total",
			Help: "Short links created.",
		}),
		LinksSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linktoolkit_links_swept_total",
			Help: "Expired links purged by the sweeper.",
		}),
		ClicksPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linktoolkit_clicks_published_total",
			Help: "Click events handed to the ingestion stream.",
		}),
		ClicksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linktoolkit_clicks_dropped_total",
			Help: "Click events dropped because the publish buffer was full.",
		}),
		ClicksIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linktoolkit_clicks_ingested_total",
			Help: "Click records persisted by the consumer.",
		}),
		ClicksDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linktoolkit_clicks_discarded_total",
			Help: "Click events discarded after a failed insert.",
		}),
	}

	reg.MustRegister(
		m.Redirects,
		m.LinksCreated,
		m.LinksSwept,
		m.ClicksPublished,
		m.ClicksDropped,
		m.ClicksIngested,
		m.ClicksDiscarded,
	)
	return m
}
