package metrics

import "github.com/prometheus/client_golang/prometheus"

// Key constants are exported primarily for documentation reasons. Typically,
// they will not be used programmatically outside of defining the collectors.

// Keys for MPC metrics.
const (
	CreateMatrixSecondsKey          = "mpc_create_matrix_seconds"
	CreateSparsityPatternSecondsKey = "mpc_create_sparsity_pattern_seconds"
	PatternAssembleSecondsKey       = "mpc_sparsity_pattern_assemble_seconds"
	PatternMasterInsertsTotalKey    = "mpc_pattern_master_inserts_total"
	NeighborhoodCommsTotalKey       = "mpc_neighborhood_comms_total"
)

// Collectors for MPC metrics.
var (
	CreateMatrixSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: CreateMatrixSecondsKey,
		Help: "Duration of constrained matrix creation, pattern assembly included.",
	})
	CreateSparsityPatternSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: CreateSparsityPatternSecondsKey,
		Help: "Duration of constrained sparsity pattern construction.",
	})
	PatternAssembleSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: PatternAssembleSecondsKey,
		Help: "Duration of the collective sparsity pattern assembly.",
	})
	PatternMasterInsertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: PatternMasterInsertsTotalKey,
		Help: "Cumulative number of master block insertions into sparsity patterns.",
	}, []string{"strategy"})
	NeighborhoodCommsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: NeighborhoodCommsTotalKey,
		Help: "Cumulative number of neighbourhood communicators created for constraints.",
	})
)

// MPCCollectors returns the collectors of the mpc and la packages.
func MPCCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		CreateMatrixSeconds,
		CreateSparsityPatternSeconds,
		PatternAssembleSeconds,
		PatternMasterInsertsTotal,
		NeighborhoodCommsTotal,
	}
}
