package openhabtest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ItemMessage builds a stream message for item on the smarthome bus.
// value is encoded as a JSON string.
func ItemMessage(item, eventType, value string) string {
	verb := "state"
	switch {
	case eventType == "ItemCommandEvent":
		verb = "command"
	case strings.HasSuffix(eventType, "ChangedEvent"):
		verb = "statechanged"
	}

	inner, _ := json.Marshal(map[string]string{"type": "String", "value": value})
	env, _ := json.Marshal(map[string]string{
		"topic":   fmt.Sprintf("smarthome/items/%s/%s", item, verb),
		"payload": string(inner),
		"type":    eventType,
	})
	return string(env)
}

// ItemList builds an item listing body from name/state pairs.
func ItemList(pairs ...string) string {
	items := make([]map[string]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		items = append(items, map[string]string{
			"name":  pairs[i],
			"type":  "String",
			"state": pairs[i+1],
		})
	}
	b, _ := json.Marshal(items)
	return string(b)
}
