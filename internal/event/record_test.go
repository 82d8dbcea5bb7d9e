package event

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRecordMarshalJSON(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 891_234_567, time.FixedZone("CET", 3600))
	rec := NewRecord(TabCreated, at, TabCreatedData{NewTabID: "7", TotalTabs: Count(3)})

	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["observer"] != "browser" {
		t.Errorf("observer = %v, want browser", decoded["observer"])
	}
	if decoded["event_type"] != "tab_created" {
		t.Errorf("event_type = %v, want tab_created", decoded["event_type"])
	}
	if decoded["timestamp"] != "2025-03-04T04:06:07.891Z" {
		t.Errorf("timestamp = %v, want 2025-03-04T04:06:07.891Z", decoded["timestamp"])
	}
	data, ok := decoded["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %T, want object", decoded["data"])
	}
	if data["newTabId"] != "7" || data["totalTabs"] != float64(3) {
		t.Errorf("data = %v", data)
	}
}

func TestDegradedCountEncodesNull(t *testing.T) {
	raw, err := json.Marshal(InitialStateData{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(raw) != `{"totalTabs":null,"activeTab":null}` {
		t.Errorf("got %s", raw)
	}
}

func TestTabChangesOmitUnchanged(t *testing.T) {
	title := "New"
	raw, err := json.Marshal(TabChanges{Title: &title})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(raw) != `{"title":"New"}` {
		t.Errorf("got %s", raw)
	}
	if (TabChanges{}).Empty() != true {
		t.Error("zero TabChanges should be empty")
	}
}

func TestTypeValid(t *testing.T) {
	for _, typ := range Types {
		if !typ.Valid() {
			t.Errorf("%s should be valid", typ)
		}
	}
	if Type("tab_moved").Valid() {
		t.Error("tab_moved should not be valid")
	}
}
