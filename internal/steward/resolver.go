package steward

import (
	"log/slog"
	"slices"
)

// OrderByDependency sorts and possibly enlarges the requested containers so
// the result can be used to start a group of containers without breaking any
// links. The result is in start order (dependencies first); reverse it for
// stopping.
//
// The full configuration graph is passed explicitly: reverse-dependency
// resolution has to scan containers outside the requested set.
//
// With addDependencies, containers that the requested ones link to are pulled
// into the result (useful for starting). With addReverseDependencies,
// containers that directly or indirectly link to the requested ones are pulled
// in (useful for stopping: everything that would be broken). A link pointing
// outside the working set with addDependencies off is treated as unsatisfiable
// and excluded from the ordering constraint.
//
// Termination is guaranteed by the configuration invariant that the graph is
// acyclic: every pass either appends at least one container or stops the loop.
func OrderByDependency(graph, requested []*Container, addDependencies, addReverseDependencies bool, logger *slog.Logger) []*Container {
	if logger == nil {
		logger = slog.Default()
	}

	working := slices.Clone(requested)

	if addReverseDependencies {
		// Grow the set with anything that can be directly or indirectly
		// broken by stopping one of the requested containers.
		for changed := true; changed; {
			changed = false
			for _, candidate := range graph {
				if slices.Contains(working, candidate) {
					continue
				}
				for _, link := range candidate.Links {
					if slices.Contains(working, link) {
						logger.Debug("Adding reverse dependency to the requested containers",
							slog.String("container", candidate.Name))
						working = append(working, candidate)
						changed = true
						break
					}
				}
			}
		}
	}

	var ordered []*Container
	for changed := true; changed; {
		changed = false
		// Snapshot: dependencies appended below take part in the next pass.
		for _, c := range slices.Clone(working) {
			if slices.Contains(ordered, c) {
				continue
			}
			satisfied := true
			for _, link := range c.Links {
				if !slices.Contains(working, link) {
					if addDependencies {
						logger.Debug("Adding dependency to the requested containers",
							slog.String("container", link.Name))
						working = append(working, link)
						changed = true
					} else {
						// Unsatisfiable here, ignore for ordering.
						continue
					}
				}
				if !slices.Contains(ordered, link) {
					satisfied = false
				}
			}
			if satisfied {
				ordered = append(ordered, c)
				changed = true
			}
		}
	}
	return ordered
}

// Reversed returns the containers in reverse order, for stopping.
func Reversed(containers []*Container) []*Container {
	out := slices.Clone(containers)
	slices.Reverse(out)
	return out
}
