package steward

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Cleaner garbage-collects stale containers and dangling images under an
// age-based retention policy.
type Cleaner struct {
	graph   []*Container
	runtime Runtime
	store   InstanceStore
	logger  *slog.Logger

	now func() time.Time
}

// NewCleaner returns a Cleaner for the configured container graph.
func NewCleaner(graph []*Container, runtime Runtime, store InstanceStore, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		graph:   graph,
		runtime: runtime,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// CleanupContainers removes stopped containers that finished more than
// minAgeDays ago. The latest known instance of every configured container is
// never removed, however old: the instance records must always resolve. In
// simulate mode nothing is removed but the same candidate set is returned.
//
// A single removal failure is logged and skipped; the sweep continues.
func (cl *Cleaner) CleanupContainers(ctx context.Context, minAgeDays int, simulate bool) ([]string, error) {
	containers, err := cl.runtime.ListContainers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	latest := make(map[string]bool, len(cl.graph))
	for _, c := range cl.graph {
		if id := cl.store.InstanceID(c.Name); id != "" {
			latest[id] = true
		}
	}

	cutoff := cl.now().Add(-time.Duration(minAgeDays) * 24 * time.Hour)
	var removed []string
	for _, ctr := range containers {
		state, err := cl.runtime.InspectContainer(ctx, ctr.ID)
		if err != nil {
			return removed, fmt.Errorf("inspect container %s: %w", ctr.ID, err)
		}
		if state.Running {
			continue
		}
		if state.FinishedAt.IsZero() {
			// Never finished, no data to age.
			continue
		}
		if state.FinishedAt.After(cutoff) {
			continue
		}
		if state.CreatedAt.After(state.FinishedAt) {
			return removed, &Error{
				Code: ErrorCodeDataIntegrity,
				Message: fmt.Sprintf(
					"container %s was created at %s, after it finished at %s",
					ctr.ID, state.CreatedAt, state.FinishedAt),
			}
		}
		if latest[ctr.ID] {
			cl.logger.Warn("Not removing stopped container, it is the last known instance",
				slog.String("id", ctr.ID))
			continue
		}

		removed = append(removed, ctr.ID)
		if simulate {
			cl.logger.Info("Would remove old container", slog.String("id", ctr.ID))
			continue
		}
		cl.logger.Info("Removing old container", slog.String("id", ctr.ID))
		if err := cl.runtime.RemoveContainer(ctx, ctr.ID); err != nil {
			cl.logger.Warn("Failed to remove container",
				slog.String("id", ctr.ID),
				slog.Any("error", err))
		}
	}
	return removed, nil
}

// CleanupImages removes dangling images older than minAgeDays that are not
// used by any surviving container. simulatedRemoved carries the container IDs
// a simulated CleanupContainers pass would have removed, so simulation
// composes correctly across both sweeps.
func (cl *Cleaner) CleanupImages(ctx context.Context, minAgeDays int, simulate bool, simulatedRemoved []string) error {
	images, err := cl.runtime.ListImages(ctx, false)
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}
	knownImages := make(map[string]bool, len(images))
	for _, img := range images {
		knownImages[img.ID] = true
	}

	simulated := make(map[string]bool, len(simulatedRemoved))
	for _, id := range simulatedRemoved {
		simulated[id] = true
	}

	containers, err := cl.runtime.ListContainers(ctx, true)
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}
	used := make(map[string]bool)
	for _, ctr := range containers {
		state, err := cl.runtime.InspectContainer(ctx, ctr.ID)
		if err != nil {
			return fmt.Errorf("inspect container %s: %w", ctr.ID, err)
		}
		if !knownImages[state.ImageID] {
			return &Error{
				Code: ErrorCodeDataIntegrity,
				Message: fmt.Sprintf(
					"image %s does not exist but is used by container %s", state.ImageID, ctr.ID),
			}
		}
		if simulated[ctr.ID] {
			continue
		}
		used[state.ImageID] = true
	}

	dangling, err := cl.runtime.ListImages(ctx, true)
	if err != nil {
		return fmt.Errorf("list dangling images: %w", err)
	}
	cutoff := cl.now().Add(-time.Duration(minAgeDays) * 24 * time.Hour)
	for _, img := range dangling {
		if !untagged(img) {
			return &Error{
				Code: ErrorCodeDataIntegrity,
				Message: fmt.Sprintf(
					"image %s is tagged %v although the listing was filtered to dangling images", img.ID, img.Tags),
			}
		}
		if used[img.ID] {
			continue
		}
		if img.CreatedAt.After(cutoff) {
			continue
		}

		if simulate {
			cl.logger.Info("Would delete unused old image", slog.String("id", img.ID))
			continue
		}
		cl.logger.Info("Deleting unused old image", slog.String("id", img.ID))
		if err := cl.runtime.RemoveImage(ctx, img.ID); err != nil {
			cl.logger.Warn("Failed to remove unused image",
				slog.String("id", img.ID),
				slog.Any("error", err))
		}
	}
	return nil
}

// untagged reports whether the image carries no real tag. The engine lists
// dangling images either with an empty tag list or with the <none> sentinel.
func untagged(img ImageSummary) bool {
	for _, tag := range img.Tags {
		if tag != "<none>:<none>" && tag != "<none>" {
			return false
		}
	}
	return true
}
