package engine

import (
	"hash/fnv"
)

// Router routes commands to workers based on index ID
type Router struct {
	workerCount int
}

// NewRouter creates a new router with the specified worker count
func NewRouter(workerCount int) *Router {
	return &Router{
		workerCount: workerCount,
	}
}

// Route calculates the worker ID for a given index
// Uses FNV-1a hash for stable, deterministic routing
func (r *Router) Route(indexID string) int {
	h := fnv.New32a()
	h.Write([]byte(indexID))
	return int(h.Sum32()) % r.workerCount
}
