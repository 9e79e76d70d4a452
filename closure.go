package narstore

import (
	"context"
)

// Direction selects which way closure traversal follows the reference graph.
type Direction int

const (
	// DirectionForward follows reference edges: the closure contains the
	// seeds and everything they depend on.
	DirectionForward Direction = iota

	// DirectionReverse follows referrer edges: the closure contains the
	// seeds and everything that depends on them.
	DirectionReverse
)

func (d Direction) String() string {
	if d == DirectionReverse {
		return "reverse"
	}
	return "forward"
}

// ClosureQuery configures closure computation. The zero value is a plain
// forward closure.
//
// IncludeOutputs and IncludeDerivers are graph-expansion rules, not
// post-filters: at every visited node they pull in the node's registered
// build outputs or deriving objects, and the pulled nodes are themselves
// traversed and expanded.
type ClosureQuery struct {
	Direction       Direction
	IncludeOutputs  bool
	IncludeDerivers bool
}

// Closure computes the transitive closure of a single path.
func (s *Store) Closure(ctx context.Context, sp StorePath, q ClosureQuery) ([]StorePath, error) {
	return s.ClosureMulti(ctx, []StorePath{sp}, q)
}

// ClosureMulti computes the closure of a seed set in one traversal. The
// result equals the union of per-seed closures, contains every seed, and is
// sorted by base name. Cycles are handled by once-only visitation.
func (s *Store) ClosureMulti(ctx context.Context, seeds []StorePath, q ClosureQuery) ([]StorePath, error) {
	visited := make(map[string]struct{}, len(seeds))
	queue := make([]string, 0, len(seeds))
	for _, sp := range seeds {
		if _, ok := visited[sp.baseName]; ok {
			continue
		}
		visited[sp.baseName] = struct{}{}
		queue = append(queue, sp.baseName)
	}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		next, err := s.edges(ctx, node, q)
		if err != nil {
			return nil, err
		}
		for _, n := range next {
			if _, ok := visited[n]; ok {
				continue
			}
			visited[n] = struct{}{}
			queue = append(queue, n)
		}
	}

	result := make([]StorePath, 0, len(visited))
	for name := range visited {
		// Backend-returned names were validated at registration time.
		result = append(result, StorePath{baseName: name})
	}
	sortStorePaths(result)
	return result, nil
}

// edges returns the neighbors of node under the query: the directional
// reference edges plus any expansion-rule nodes.
func (s *Store) edges(ctx context.Context, node string, q ClosureQuery) ([]string, error) {
	var next []string

	if q.Direction == DirectionReverse {
		referrers, err := s.backend.Referrers(ctx, node)
		if err != nil {
			return nil, s.wrapBackendErr(err)
		}
		next = append(next, referrers...)
	} else {
		info, err := s.backend.PathInfo(ctx, node)
		if err != nil {
			return nil, s.wrapBackendErr(err)
		}
		next = append(next, info.References...)
	}

	if q.IncludeOutputs {
		outputs, err := s.backend.Outputs(ctx, node)
		if err != nil {
			return nil, s.wrapBackendErr(err)
		}
		next = append(next, outputs...)
	}
	if q.IncludeDerivers {
		derivers, err := s.backend.Derivers(ctx, node)
		if err != nil {
			return nil, s.wrapBackendErr(err)
		}
		next = append(next, derivers...)
	}
	return next, nil
}
