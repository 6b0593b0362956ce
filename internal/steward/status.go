package steward

import (
	"fmt"
	"time"
)

// statusInputs are the facts the status decision is made from. They are
// gathered fresh on every query; nothing here is persisted.
type statusInputs struct {
	built   bool
	running bool

	// timeRunning is the time since the last start. Valid only when
	// timeRunningKnown is set; the engine cannot always date a start.
	timeRunning      time.Duration
	timeRunningKnown bool

	testsOK   bool
	testCount int
}

// evaluateStatus turns the gathered facts into a verdict. Decisions are taken
// in strict priority order; see the table tests for the full matrix.
func evaluateStatus(c *Container, in statusInputs) StatusReport {
	report := func(s Status, msg string) StatusReport {
		return StatusReport{ContainerName: c.Name, Status: s, Message: msg}
	}

	if !in.built {
		return report(StatusMissing, "image is missing on the local system")
	}

	if c.OnlyBuild && in.testCount == 0 {
		return report(StatusOkay, "(only build)")
	}

	if in.testsOK {
		testsMsg := fmt.Sprintf("%d/%d tests ok", in.testCount, in.testCount)
		switch {
		case in.running:
			return report(StatusOkay, "running, "+testsMsg)
		case c.OnlyBuild:
			return report(StatusOkay, testsMsg)
		case in.testCount > 0:
			// A stopped process should not pass liveness probes.
			return report(StatusFailed, "stopped, but tests succeeded")
		default:
			return report(StatusFailed, "stopped")
		}
	}

	switch {
	case c.OnlyBuild:
		return report(StatusFailed, "tests failed")
	case in.running:
		if in.timeRunningKnown && in.timeRunning < c.StartupGraceTime {
			return report(StatusStarting, "starting up... tests not yet OK")
		}
		return report(StatusFailed, "running, but tests failed")
	default:
		return report(StatusFailed, "stopped")
	}
}
