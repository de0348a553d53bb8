package partitions

import (
	"fmt"
)

// Partition is the set of cells owned by one rank
type Partition struct {
	// Unique identifier for this partition, equal to the owning rank
	ID int

	// Element membership
	Elements    []int // Serial cell indices in this partition, ascending
	NumElements int
}

// PartitionLayout manages the complete mesh decomposition
type PartitionLayout struct {
	// All partitions in the mesh
	Partitions []Partition

	// Global sizing information
	TotalElements int // Sum of all elements across partitions
	NumPartitions int // Total number of partitions (ranks)

	// Element to partition mapping
	EToP []int // Length TotalElements: element k belongs to partition EToP[k]
}

// NewPartitionLayout builds the layout described by an element -> partition map
func NewPartitionLayout(eToP []int, numPartitions int) (*PartitionLayout, error) {
	partitions := make([]Partition, numPartitions)
	for i := range partitions {
		partitions[i] = Partition{ID: i, Elements: make([]int, 0)}
	}
	for elem, part := range eToP {
		if part < 0 || part >= numPartitions {
			return nil, fmt.Errorf("element %d assigned to partition %d, have %d partitions",
				elem, part, numPartitions)
		}
		partitions[part].Elements = append(partitions[part].Elements, elem)
		partitions[part].NumElements++
	}
	layout := &PartitionLayout{
		Partitions:    partitions,
		TotalElements: len(eToP),
		NumPartitions: numPartitions,
		EToP:          eToP,
	}
	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}

// GetPartition returns the partition containing element k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("%d partitions stored, NumPartitions is %d",
			len(pl.Partitions), pl.NumPartitions)
	}
	total := 0
	for _, p := range pl.Partitions {
		if p.NumElements != len(p.Elements) {
			return fmt.Errorf("partition %d: NumElements %d != %d elements",
				p.ID, p.NumElements, len(p.Elements))
		}
		for _, e := range p.Elements {
			if pl.GetPartition(e) != p.ID {
				return fmt.Errorf("partition %d lists element %d, EToP assigns it to %d",
					p.ID, e, pl.GetPartition(e))
			}
		}
		total += p.NumElements
	}
	if total != pl.TotalElements {
		return fmt.Errorf("partitions hold %d elements, TotalElements is %d",
			total, pl.TotalElements)
	}
	return nil
}
