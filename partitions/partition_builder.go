package partitions

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
)

// PartitionBuilder assigns the cells of a serial mesh to ranks
type PartitionBuilder struct {
	NumElements   int
	NumPartitions int // Number of ranks
	Strategy      PartitionStrategy
}

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	// Simple strategies
	BlockPartition PartitionStrategy = iota // Consecutive elements
	RoundRobin                              // Distribute cyclically

	// Graph-based strategies
	GraphPartition // Use METIS or similar
)

func (s PartitionStrategy) String() string {
	switch s {
	case BlockPartition:
		return "block"
	case RoundRobin:
		return "round-robin"
	case GraphPartition:
		return "graph"
	}
	return fmt.Sprintf("PartitionStrategy(%d)", int(s))
}

// BuildPartitions creates a partition layout
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.NumPartitions < 1 {
		return nil, fmt.Errorf("invalid number of partitions %d", pb.NumPartitions)
	}
	eToP := pb.partitionElements(pb.NumPartitions)

	layout, err := NewPartitionLayout(eToP, pb.NumPartitions)
	if err != nil {
		return nil, err
	}
	stats := layout.PartitionStatistics()
	log.WithFields(log.Fields{
		"strategy":   pb.Strategy,
		"partitions": stats.NumPartitions,
		"imbalance":  stats.Imbalance,
	}).Debug("built partitions")
	return layout, nil
}

// partitionElements assigns elements to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) []int {
	eToP := make([]int, pb.NumElements)

	switch pb.Strategy {
	case BlockPartition:
		// Simple block partitioning
		elementsPerPartition := int(math.Ceil(float64(pb.NumElements) / float64(numPartitions)))
		if elementsPerPartition < 1 {
			elementsPerPartition = 1
		}
		for i := 0; i < pb.NumElements; i++ {
			eToP[i] = i / elementsPerPartition
			if eToP[i] >= numPartitions {
				eToP[i] = numPartitions - 1
			}
		}

	case RoundRobin:
		// Distribute elements cyclically
		for i := 0; i < pb.NumElements; i++ {
			eToP[i] = i % numPartitions
		}

	case GraphPartition:
		// Would use METIS or similar graph partitioner
		// For now, fall back to block partitioning
		return pb.partitionWithStrategy(BlockPartition, numPartitions)

	default:
		// Default to block partitioning
		return pb.partitionWithStrategy(BlockPartition, numPartitions)
	}

	return eToP
}

// partitionWithStrategy recursively applies a different strategy
func (pb *PartitionBuilder) partitionWithStrategy(strategy PartitionStrategy, numPartitions int) []int {
	oldStrategy := pb.Strategy
	pb.Strategy = strategy
	result := pb.partitionElements(numPartitions)
	pb.Strategy = oldStrategy
	return result
}

// PartitionStatistics computes load balance metrics
func (layout *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: layout.NumPartitions,
		MinElements:   math.MaxInt32,
		MaxElements:   0,
		AvgElements:   float64(layout.TotalElements) / float64(layout.NumPartitions),
	}

	for _, p := range layout.Partitions {
		if p.NumElements < stats.MinElements {
			stats.MinElements = p.NumElements
		}
		if p.NumElements > stats.MaxElements {
			stats.MaxElements = p.NumElements
		}
	}

	if stats.AvgElements > 0 {
		stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements
	}

	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinElements   int
	MaxElements   int
	AvgElements   float64
	Imbalance     float64 // MaxElements / AvgElements
}
