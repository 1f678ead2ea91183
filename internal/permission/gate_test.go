package permission

import (
	"testing"
	"time"
)

func baseContext() RuntimeContext {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	return RuntimeContext{
		BrokerConnected:    true,
		BrokerAccountReady: true,
		ExecutionEnabled:   true,
		DataQuality:        0.9,
		DataQualityFloor:   0.30,
		DaysToExpiry:       10,
		MinDaysToExpiry:    5,
		LastBrokerTruth:    now.Add(-time.Minute),
		MaxBrokerTruthAge:  5 * time.Minute,
		Now:                now,
	}
}

func TestAssertExecutionAllowedClearsWhenEverythingHealthy(t *testing.T) {
	if d := AssertExecutionAllowed(baseContext()); d != nil {
		t.Fatalf("expected no denial, got %+v", d)
	}
}

func TestKillSwitchBlocksBeforeAnythingElse(t *testing.T) {
	rc := baseContext()
	rc.KillSwitchOn = true
	rc.BrokerConnected = false // would also fail, but kill switch must win
	d := AssertExecutionAllowed(rc)
	if d == nil || d.Rule != "KILL_SWITCH" {
		t.Fatalf("expected KILL_SWITCH denial, got %+v", d)
	}
}

func TestExpiryTooCloseBlocks(t *testing.T) {
	rc := baseContext()
	rc.DaysToExpiry = 2
	d := AssertExecutionAllowed(rc)
	if d == nil || d.Rule != "TOO_CLOSE_TO_EXPIRY" {
		t.Fatalf("expected TOO_CLOSE_TO_EXPIRY denial, got %+v", d)
	}
}

func TestStaleBrokerTruthBlocks(t *testing.T) {
	rc := baseContext()
	rc.LastBrokerTruth = rc.Now.Add(-time.Hour)
	d := AssertExecutionAllowed(rc)
	if d == nil || d.Rule != "BROKER_TRUTH_STALE" {
		t.Fatalf("expected BROKER_TRUTH_STALE denial, got %+v", d)
	}
}
