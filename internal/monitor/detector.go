// Package monitor implements the periodic health monitoring side of the
// tool: it keeps a rolling window of past status snapshots, decides which
// condition changes are worth alerting on, and publishes the results.
package monitor

import (
	"sort"

	"github.com/matthieugusmini/docker-steward/internal/steward"
)

// HistoryLength is the number of snapshots retained in the rolling window.
const HistoryLength = 10

// Entry is the persisted verdict of one container in one snapshot.
type Entry struct {
	Status  steward.Status `json:"status"`
	Message string         `json:"message"`
}

// Snapshot maps every container name to its verdict at one monitoring run.
type Snapshot map[string]Entry

// SnapshotOf converts fresh status reports into a Snapshot.
func SnapshotOf(reports []steward.StatusReport) Snapshot {
	snap := make(Snapshot, len(reports))
	for _, r := range reports {
		snap[r.ContainerName] = Entry{Status: r.Status, Message: r.Message}
	}
	return snap
}

// ExtendedStatusReport is the per-container outcome of change detection.
type ExtendedStatusReport struct {
	ContainerName string
	CurrentStatus steward.Status
	OverallStatus steward.Status
	Message       string
	Changed       bool
}

// DetectChanges evaluates the history window, newest snapshot first (the
// just-computed live status at index 0), and decides per container whether
// its condition changed in a way worth reporting.
//
// STARTING is a transient condition equivalent to whatever it resolves into,
// so it is filtered out of the change computation: status churn during normal
// restarts must not trigger alert noise. The displayed overall status is the
// raw newest entry, unfiltered.
//
// A container counts as changed when its two most recent settled statuses
// differ. With too little settled history to judge a transition (e.g. on
// first run, or when everything recent was STARTING), any current failure is
// reported immediately instead.
func DetectChanges(history []Snapshot) (bool, []ExtendedStatusReport) {
	if len(history) == 0 {
		return false, nil
	}

	names := make([]string, 0, len(history[0]))
	for name := range history[0] {
		names = append(names, name)
	}
	sort.Strings(names)

	changesToReport := false
	reports := make([]ExtendedStatusReport, 0, len(names))
	for _, name := range names {
		var raw []steward.Status
		for _, snap := range history {
			if e, ok := snap[name]; ok {
				raw = append(raw, e.Status)
			}
		}

		var settled []steward.Status
		for _, s := range raw {
			if s != steward.StatusStarting {
				settled = append(settled, s)
			}
		}

		var changed bool
		if len(settled) > 2 {
			changed = settled[0] != settled[1]
		} else {
			changed = raw[0] == steward.StatusFailed || raw[0] == steward.StatusMissing
		}
		changesToReport = changesToReport || changed

		reports = append(reports, ExtendedStatusReport{
			ContainerName: name,
			CurrentStatus: raw[0],
			OverallStatus: raw[0],
			Message:       history[0][name].Message,
			Changed:       changed,
		})
	}
	return changesToReport, reports
}
