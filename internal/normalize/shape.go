package normalize

// Shape is the recognized form of a status payload
type Shape int

const (
	// ShapeEmpty is a null payload: no data, no error
	ShapeEmpty Shape = iota
	// ShapeList is a bare array of task records
	ShapeList
	// ShapeTaskList is an object with an array-valued "tasks" field
	ShapeTaskList
	// ShapeEnvelope is the service's {success, data} response wrapper
	ShapeEnvelope
	// ShapeSingle is an object that looks like one task record
	ShapeSingle
	// ShapeSystem is anything else, forwarded untouched as a system message
	ShapeSystem
)

// String returns the shape name used in logs
func (s Shape) String() string {
	switch s {
	case ShapeEmpty:
		return "empty"
	case ShapeList:
		return "list"
	case ShapeTaskList:
		return "tasks"
	case ShapeEnvelope:
		return "envelope"
	case ShapeSingle:
		return "single"
	case ShapeSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Classification is the result of sniffing a payload. Exactly one of the
// fields besides Shape is meaningful, depending on Shape.
type Classification struct {
	Shape Shape

	// Records holds raw task records for ShapeList, ShapeTaskList and ShapeSingle
	Records []any

	// Inner is the unwrapped data of a ShapeEnvelope payload
	Inner any
	// Failed is set for an envelope whose success flag is false
	Failed bool

	// Message is the opaque payload of ShapeSystem
	Message any
}

// Classify determines the shape of a decoded JSON payload
func Classify(payload any) Classification {
	switch v := payload.(type) {
	case nil:
		return Classification{Shape: ShapeEmpty}
	case []any:
		return Classification{Shape: ShapeList, Records: v}
	case map[string]any:
		if tasks, ok := v["tasks"].([]any); ok {
			return Classification{Shape: ShapeTaskList, Records: tasks}
		}
		if success, ok := v["success"].(bool); ok {
			if _, hasData := v["data"]; hasData || !success {
				return Classification{Shape: ShapeEnvelope, Inner: v["data"], Failed: !success}
			}
		}
		_, hasID := v["task_id"]
		_, hasStatus := v["status"]
		if hasID || hasStatus {
			return Classification{Shape: ShapeSingle, Records: []any{v}}
		}
		return Classification{Shape: ShapeSystem, Message: v}
	default:
		return Classification{Shape: ShapeSystem, Message: v}
	}
}
