package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"swaprouter/internal/model"
)

const namespace = "swaprouter"

// Collectors holds the routing metrics. The zero value is not usable; a
// nil *Collectors records nothing.
type Collectors struct {
	TopNUsed       *prometheus.HistogramVec
	RouteShapes    *prometheus.CounterVec
	RouteRequests  *prometheus.CounterVec
	RouteDuration  *prometheus.HistogramVec
	QuotesPriced   *prometheus.CounterVec
	StalePoolLists *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer to
// export them on the process-wide /metrics handler.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		TopNUsed: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidate_pools_top_n_used",
			Help:      "Deepest rank of a selected candidate bucket that ended up in the best route",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 8, 10},
		}, []string{"protocol", "bucket"}),
		RouteShapes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_shapes_total",
			Help:      "Best routes by protocol mix and split",
		}, []string{"protocols", "split"}),
		RouteRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_requests_total",
			Help:      "Routing requests by trade type and outcome",
		}, []string{"trade_type", "status"}),
		RouteDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_duration_seconds",
			Help:      "Routing latency by phase",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"phase"}),
		QuotesPriced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Route quotes by protocol and whether they were priced",
		}, []string{"protocol", "priced"}),
		StalePoolLists: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_pool_lists_total",
			Help:      "Candidate selections served from a cached or snapshot pool list",
		}, []string{"protocol"}),
	}
}

// ObservePhase records how long a routing phase took.
func (c *Collectors) ObservePhase(phase string, started time.Time) {
	if c == nil {
		return
	}
	c.RouteDuration.WithLabelValues(phase).Observe(time.Since(started).Seconds())
}

// ObserveRequest counts one routing outcome.
func (c *Collectors) ObserveRequest(tradeType model.TradeType, status string) {
	if c == nil {
		return
	}
	c.RouteRequests.WithLabelValues(tradeType.String(), status).Inc()
}

// ObserveQuotes counts priced and unpriced quotes of one protocol.
func (c *Collectors) ObserveQuotes(protocol model.Protocol, priced, unpriced int) {
	if c == nil {
		return
	}
	c.QuotesPriced.WithLabelValues(string(protocol), "true").Add(float64(priced))
	c.QuotesPriced.WithLabelValues(string(protocol), "false").Add(float64(unpriced))
}

func (c *Collectors) ObserveStale(protocol model.Protocol) {
	if c == nil {
		return
	}
	c.StalePoolLists.WithLabelValues(string(protocol)).Inc()
}

// ObserveRoute records the protocol mix of the best route and, for every
// selection bucket, the deepest position of a bucket pool used by it.
func (c *Collectors) ObserveRoute(legs []*model.RouteWithValidQuote, selections []model.CandidatePoolsBySelectionCriteria) {
	if c == nil || len(legs) == 0 {
		return
	}
	c.RouteShapes.WithLabelValues(RouteShape(legs), splitLabel(len(legs))).Inc()

	used := make(map[string]struct{})
	for _, leg := range legs {
		for _, address := range leg.PoolAddresses() {
			used[model.AddressKey(address)] = struct{}{}
		}
	}
	for _, selection := range selections {
		for _, bucket := range selection.Selections.Buckets() {
			depth := TopNUsed(bucket.Pools, used)
			if depth < 0 {
				continue
			}
			c.TopNUsed.WithLabelValues(string(selection.Protocol), bucket.Name).Observe(float64(depth))
		}
	}
}

// TopNUsed returns the 1-based position of the deepest pool in bucket that
// appears in used, or -1 when the bucket contributed nothing.
func TopNUsed(bucket []model.SubgraphPool, used map[string]struct{}) int {
	depth := -1
	for i, pool := range bucket {
		if _, ok := used[model.NormalizeID(pool.ID)]; ok {
			depth = i + 1
		}
	}
	return depth
}

// RouteShape is V2, V3 or mixed.
func RouteShape(legs []*model.RouteWithValidQuote) string {
	protocols := make(map[model.Protocol]struct{})
	for _, leg := range legs {
		protocols[leg.Protocol()] = struct{}{}
	}
	if len(protocols) > 1 {
		return "mixed"
	}
	for protocol := range protocols {
		return string(protocol)
	}
	return "none"
}

func splitLabel(legs int) string {
	if legs > 1 {
		return "split"
	}
	return "single"
}
