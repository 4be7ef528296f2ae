package normalize

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ytget/dlsync/internal/model"
)

func decode(t *testing.T, body string) any {
	t.Helper()
	payload, err := Decode([]byte(body))
	if err != nil {
		t.Fatalf("Decode(%s) failed: %v", body, err)
	}
	return payload
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected Shape
	}{
		{"null", `null`, ShapeEmpty},
		{"array", `[{"task_id":"a"}]`, ShapeList},
		{"empty array", `[]`, ShapeList},
		{"tasks object", `{"tasks":[]}`, ShapeTaskList},
		{"envelope", `{"success":true,"data":[]}`, ShapeEnvelope},
		{"failed envelope", `{"success":false,"error_code":"X"}`, ShapeEnvelope},
		{"single by id", `{"task_id":"a"}`, ShapeSingle},
		{"single by status", `{"status":"pending"}`, ShapeSingle},
		{"system object", `{"cpu":12}`, ShapeSystem},
		{"scalar", `"hello"`, ShapeSystem},
		{"tasks not a list", `{"tasks":"nope"}`, ShapeSystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(decode(t, tt.body)).Shape
			if got != tt.expected {
				t.Errorf("Classify(%s) expected %v, got %v", tt.body, tt.expected, got)
			}
		})
	}
}

func TestNormalize_TasksObjectWithIDFallback(t *testing.T) {
	b := Normalize(decode(t, `{"tasks":[{"id":"t2","status":"pending"}]}`))

	expected := []model.TaskUpdate{{TaskID: "t2", Status: model.TaskStatusPending}}
	if !reflect.DeepEqual(b.Updates, expected) {
		t.Errorf("Expected %+v, got %+v", expected, b.Updates)
	}
	if b.IsSystem() {
		t.Error("Expected task batch, got system message")
	}
}

func TestNormalize_ShapesAreEquivalent(t *testing.T) {
	record := `{"task_id":"t1","status":"downloading","progress":"40","downloaded_bytes":400,"total_bytes":1000,"download_speed":12.5,"eta_seconds":48,"title":"Clip"}`
	bodies := []string{
		`[` + record + `]`,
		`{"tasks":[` + record + `]}`,
		record,
		`{"success":true,"data":[` + record + `]}`,
		`{"success":true,"data":` + record + `}`,
	}

	expected := []model.TaskUpdate{{
		TaskID:          "t1",
		Status:          model.TaskStatusDownloading,
		Progress:        40,
		DownloadedBytes: 400,
		TotalBytes:      1000,
		DownloadSpeed:   12.5,
		ETASeconds:      48,
		Title:           "Clip",
	}}

	for _, body := range bodies {
		got := Normalize(decode(t, body)).Updates
		if !reflect.DeepEqual(got, expected) {
			t.Errorf("Normalize(%s) expected %+v, got %+v", body, expected, got)
		}
	}
}

func TestNormalize_NullIsNoData(t *testing.T) {
	b := Normalize(nil)
	if b.Shape != ShapeEmpty || len(b.Updates) != 0 || b.IsSystem() || !b.Empty() {
		t.Errorf("Expected empty batch, got %+v", b)
	}

	wrapped := Normalize(decode(t, `{"success":true,"data":null}`))
	if !wrapped.Empty() || wrapped.IsSystem() {
		t.Errorf("Expected envelope around null to carry no data, got %+v", wrapped)
	}

	list := Normalize(decode(t, `{"success":true,"data":[]}`))
	if list.Empty() {
		t.Error("Expected an empty task list to be data")
	}
}

func TestNormalize_SystemMessagePassesThrough(t *testing.T) {
	payload := decode(t, `{"type":"ping","server_time":1}`)
	b := Normalize(payload)

	if !b.IsSystem() {
		t.Fatalf("Expected system message, got %+v", b)
	}
	if !reflect.DeepEqual(b.System, payload) {
		t.Errorf("Expected payload forwarded untouched, got %v", b.System)
	}
}

func TestNormalize_FailedEnvelopeIsSystem(t *testing.T) {
	b := Normalize(decode(t, `{"success":false,"error_code":"INTERNAL","error_msg":"boom"}`))
	if !b.IsSystem() || len(b.Updates) != 0 {
		t.Errorf("Expected failed envelope as system message, got %+v", b)
	}
}

func TestNormalize_SkipsMalformedRecords(t *testing.T) {
	b := Normalize(decode(t, `[{"task_id":"a","status":"downloading"}, 42, {"task_id":"b","status":"exploded"}, {"task_id":"c"}]`))

	if b.Skipped != 2 {
		t.Errorf("Expected 2 skipped records, got %d", b.Skipped)
	}
	var ids []string
	for _, u := range b.Updates {
		ids = append(ids, u.TaskID)
	}
	if !reflect.DeepEqual(ids, []string{"a", "c"}) {
		t.Errorf("Expected [a c], got %v", ids)
	}
	if b.Updates[1].Status != model.TaskStatusPending {
		t.Errorf("Expected missing status to default to pending, got %v", b.Updates[1].Status)
	}
}

func TestNormalize_DuplicatesLastWriteWins(t *testing.T) {
	b := Normalize(decode(t, `[{"task_id":"a","progress":10},{"task_id":"b"},{"task_id":"a","progress":30}]`))

	if len(b.Updates) != 2 {
		t.Fatalf("Expected 2 updates, got %d", len(b.Updates))
	}
	if b.Updates[0].TaskID != "a" || b.Updates[0].Progress != 30 {
		t.Errorf("Expected a at 30 in first position, got %+v", b.Updates[0])
	}
}

func TestRecord_IDAndErrorFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		expectID  string
		expectErr string
	}{
		{"no id", `{"status":"failed"}`, model.UnknownTaskID, ""},
		{"empty task_id falls back to id", `{"task_id":"","id":"x"}`, "x", ""},
		{"numeric id", `{"id":17}`, "17", ""},
		{"error_message wins", `{"task_id":"a","error_message":"first","error":"second"}`, "a", "first"},
		{"error used when error_message null", `{"task_id":"a","error_message":null,"error":"second"}`, "a", "second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Record(decode(t, tt.body))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if u.TaskID != tt.expectID {
				t.Errorf("Expected id %q, got %q", tt.expectID, u.TaskID)
			}
			if u.Error != tt.expectErr {
				t.Errorf("Expected error %q, got %q", tt.expectErr, u.Error)
			}
		})
	}
}

func TestRecord_Errors(t *testing.T) {
	if _, err := Record("text"); !errors.Is(err, ErrNotObject) {
		t.Errorf("Expected ErrNotObject, got %v", err)
	}
	if _, err := Record(map[string]any{"status": 3.0}); !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("Expected ErrUnknownStatus, got %v", err)
	}
}

func TestRecord_StatusIsCaseInsensitive(t *testing.T) {
	u, err := Record(map[string]any{"task_id": "a", "status": "Completed"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if u.Status != model.TaskStatusCompleted {
		t.Errorf("Expected completed, got %v", u.Status)
	}
}

func TestRecord_NestedProgress(t *testing.T) {
	u, err := Record(decode(t, `{"type":"download_progress","task_id":"a","status":"downloading","progress":{"percentage":55.5,"downloaded":555,"total":1000,"speed":100,"eta":4}}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if u.Progress != 55.5 || u.DownloadedBytes != 555 || u.TotalBytes != 1000 || u.DownloadSpeed != 100 || u.ETASeconds != 4 {
		t.Errorf("Unexpected nested progress mapping: %+v", u)
	}
}

func TestRecord_ProgressClamped(t *testing.T) {
	u, _ := Record(map[string]any{"task_id": "a", "progress": 250.0, "total_bytes": -5.0})
	if u.Progress != 100 {
		t.Errorf("Expected progress clamped to 100, got %v", u.Progress)
	}
	if u.TotalBytes != 0 {
		t.Errorf("Expected negative total clamped to 0, got %v", u.TotalBytes)
	}
}

func TestRecord_Timestamps(t *testing.T) {
	u, err := Record(decode(t, `{"task_id":"a","created_at":"2024-05-01T10:00:00","last_updated":1714557600}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expectedCreated := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if !u.CreatedAt.Equal(expectedCreated) {
		t.Errorf("Expected created %v, got %v", expectedCreated, u.CreatedAt)
	}
	if !u.LastUpdated.Equal(expectedCreated) {
		t.Errorf("Expected last updated %v, got %v", expectedCreated, u.LastUpdated)
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		input    any
		expected float64
	}{
		{nil, 0},
		{true, 1},
		{false, 0},
		{json.Number("12.5"), 12.5},
		{"  7 ", 7},
		{"", 0},
		{"abc", 0},
		{"0x10", 16},
		{"Infinity", 0},
		{"NaN", 0},
		{"1e3", 1000},
		{42.0, 42},
		{[]any{"3"}, 3},
		{[]any{1.0, 2.0}, 0},
		{map[string]any{}, 0},
	}

	for _, tt := range tests {
		if got := Number(tt.input); got != tt.expected {
			t.Errorf("Number(%#v) expected %v, got %v", tt.input, tt.expected, got)
		}
	}
}
