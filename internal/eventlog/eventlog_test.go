package eventlog

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEventRoundTripsThroughJSON(t *testing.T) {
	e := Event{
		ID:        1,
		StreamID:  "MES",
		Kind:      KindDecision,
		Payload:   json.RawMessage(`{"template":"K1"}`),
		CreatedAt: time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != KindDecision || got.StreamID != "MES" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestOpenRejectsEmptyConnStr(t *testing.T) {
	if _, err := Open(nil, ""); err == nil {
		t.Fatal("expected error for empty connection string")
	}
}
