// Package bootstrap turns a transport's cohort size into an initial,
// deduplicated set of view neighbors using a 2-D torus topology, and
// validates the cohort is large enough to admit one before attempting it.
package bootstrap

import (
	"fmt"

	"github.com/chrysalis/peer-sampling-service/pkg/topology"
	"github.com/chrysalis/peer-sampling-service/pkg/transport"
	"github.com/chrysalis/peer-sampling-service/pkg/view"
)

// Seed computes the initial view contents for rank within a cohort of the
// given size, using the 2-D torus topology's four neighbors, deduplicated.
func Seed(rank, cohortSize int) ([]int, error) {
	dims, err := topology.Torus2D(cohortSize)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	up, down, left, right := dims.Neighbors(rank)
	seen := make(map[int]bool, 4)
	seed := make([]int, 0, 4)
	for _, peer := range []int{up, down, left, right} {
		if peer == rank || seen[peer] {
			continue
		}
		seen[peer] = true
		seed = append(seed, peer)
	}
	return seed, nil
}

// Init validates tr's cohort size, computes this rank's torus neighbors,
// and initializes v with them. A topology error is fatal: the caller should
// treat it as an environmental failure and abort the transport.
func Init(tr transport.Transport, v *view.View) error {
	seed, err := Seed(tr.OwnRank(), tr.ProcessCount())
	if err != nil {
		return err
	}
	v.Init(seed)
	return nil
}
