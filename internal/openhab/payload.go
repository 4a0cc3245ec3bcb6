package openhab

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FormatPayload renders an outbound payload as the text body openHAB
// expects. Numbers use their shortest decimal form, nil is "", and maps
// or slices are sent as JSON.
func FormatPayload(v any) string {
	switch p := v.(type) {
	case nil:
		return ""
	case string:
		return p
	case []byte:
		return string(p)
	case bool:
		return strconv.FormatBool(p)
	case float64:
		return strconv.FormatFloat(p, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(p), 'f', -1, 32)
	case int:
		return strconv.Itoa(p)
	case int64:
		return strconv.FormatInt(p, 10)
	case json.Number:
		return p.String()
	case fmt.Stringer:
		return p.String()
	case map[string]any, []any:
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Sprint(p)
		}
		return string(b)
	default:
		return fmt.Sprint(p)
	}
}
