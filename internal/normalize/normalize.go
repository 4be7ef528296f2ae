package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ytget/dlsync/internal/model"
)

var (
	// ErrNotObject is returned for records that are not JSON objects
	ErrNotObject = errors.New("task record is not an object")

	// ErrUnknownStatus is returned for records whose status is outside the known set
	ErrUnknownStatus = errors.New("unknown task status")
)

// Batch is the normalized form of one payload
type Batch struct {
	Shape   Shape
	Updates []model.TaskUpdate

	// System is set when the payload carried no task data to apply
	System any

	// Skipped counts records dropped as malformed
	Skipped int

	// empty is set for a null payload, bare or inside an envelope
	empty bool
}

// IsSystem reports whether the payload should be forwarded as a system message
func (b Batch) IsSystem() bool {
	return b.System != nil
}

// Empty reports whether the payload carried no data at all. Such a payload
// produces no events; it is not an empty task list.
func (b Batch) Empty() bool {
	return b.empty
}

// Decode parses a raw JSON body keeping numbers as json.Number, so that
// large integers survive until coercion.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

// Normalize classifies payload and converts every task record it carries.
// Malformed records are logged and skipped without affecting their siblings.
func Normalize(payload any) Batch {
	c := Classify(payload)
	if c.Shape != ShapeEnvelope {
		return fromClassification(c)
	}

	if c.Failed {
		return Batch{Shape: ShapeEnvelope, System: payload}
	}

	// Envelopes are unwrapped once; a nested envelope is not task data
	inner := Classify(c.Inner)
	if inner.Shape == ShapeEnvelope {
		return Batch{Shape: ShapeEnvelope, System: c.Inner}
	}
	b := fromClassification(inner)
	b.Shape = ShapeEnvelope
	return b
}

func fromClassification(c Classification) Batch {
	switch c.Shape {
	case ShapeEmpty:
		return Batch{Shape: ShapeEmpty, empty: true}
	case ShapeSystem:
		return Batch{Shape: ShapeSystem, System: c.Message}
	}

	b := Batch{Shape: c.Shape, Updates: make([]model.TaskUpdate, 0, len(c.Records))}
	index := make(map[string]int, len(c.Records))
	for i, raw := range c.Records {
		u, err := Record(raw)
		if err != nil {
			log.Printf("normalize: skipping record %d of %s payload: %v", i, c.Shape, err)
			b.Skipped++
			continue
		}
		if pos, ok := index[u.TaskID]; ok {
			b.Updates[pos] = u
			continue
		}
		index[u.TaskID] = len(b.Updates)
		b.Updates = append(b.Updates, u)
	}
	return b
}

// Record converts one raw task record into a TaskUpdate
func Record(raw any) (model.TaskUpdate, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return model.TaskUpdate{}, fmt.Errorf("%w: %T", ErrNotObject, raw)
	}

	status := model.TaskStatusPending
	if v, present := obj["status"]; present && v != nil {
		s, isString := v.(string)
		if !isString {
			return model.TaskUpdate{}, fmt.Errorf("%w: %v", ErrUnknownStatus, v)
		}
		parsed, known := model.ParseTaskStatus(s)
		if !known {
			return model.TaskUpdate{}, fmt.Errorf("%w: %q", ErrUnknownStatus, s)
		}
		status = parsed
	}

	u := model.TaskUpdate{
		TaskID:          taskID(obj),
		Status:          status,
		DownloadedBytes: nonNegative(obj["downloaded_bytes"]),
		TotalBytes:      nonNegative(obj["total_bytes"]),
		DownloadSpeed:   nonNegative(obj["download_speed"]),
		ETASeconds:      nonNegative(obj["eta_seconds"]),
		Error:           firstString(obj, "error_message", "error"),
		Title:           firstString(obj, "title"),
		URL:             firstString(obj, "url"),
		Message:         firstString(obj, "status_message"),
		CreatedAt:       parseTime(obj["created_at"]),
		LastUpdated:     parseTime(obj["last_updated"]),
	}

	if nested, ok := obj["progress"].(map[string]any); ok {
		applyNestedProgress(&u, obj, nested)
	} else {
		u.Progress = nonNegative(obj["progress"])
	}
	u.Progress = math.Min(u.Progress, 100)

	return u, nil
}

// applyNestedProgress handles the push stream form where progress is an
// object of {percentage, downloaded, total, speed, eta}. Flat fields win.
func applyNestedProgress(u *model.TaskUpdate, obj, nested map[string]any) {
	u.Progress = nonNegative(nested["percentage"])
	if _, ok := obj["downloaded_bytes"]; !ok {
		u.DownloadedBytes = nonNegative(nested["downloaded"])
	}
	if _, ok := obj["total_bytes"]; !ok {
		u.TotalBytes = nonNegative(nested["total"])
	}
	if _, ok := obj["download_speed"]; !ok {
		u.DownloadSpeed = nonNegative(nested["speed"])
	}
	if _, ok := obj["eta_seconds"]; !ok {
		u.ETASeconds = nonNegative(nested["eta"])
	}
}

func taskID(obj map[string]any) string {
	for _, key := range []string{"task_id", "id"} {
		switch v := obj[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		}
	}
	return model.UnknownTaskID
}

func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case nil:
			continue
		case string:
			if v != "" {
				return v
			}
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func nonNegative(v any) float64 {
	n := Number(v)
	if n < 0 {
		return 0
	}
	return n
}

// Number coerces a decoded JSON value the way a JavaScript Number() call
// would, except that NaN and infinities become 0.
func Number(v any) float64 {
	var n float64
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case json.Number:
		n = parseNumeric(string(x))
	case string:
		n = parseNumeric(x)
	case []any:
		// [] is 0 and [x] is Number(x); anything longer is NaN
		switch len(x) {
		case 0:
			return 0
		case 1:
			return Number(x[0])
		default:
			return 0
		}
	default:
		return 0
	}

	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

func parseNumeric(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.Contains(s, "_") {
		return 0
	}
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0
		}
		return float64(n)
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return n
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTime accepts ISO timestamps and epoch seconds or milliseconds.
// Anything else yields the zero time.
func parseTime(v any) time.Time {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
		if n := parseNumeric(s); n > 0 {
			return epoch(n)
		}
	case json.Number, float64, int, int64:
		if n := Number(x); n > 0 {
			return epoch(n)
		}
	}
	return time.Time{}
}

func epoch(n float64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC()
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
