// Package directive defines the closed set of control messages a Collector
// response can carry back to an Agent, and the Agent-side logic to apply
// them.
package directive

// Known directive types. Anything outside this set is logged and ignored.
const (
	TypeGoDark               = "GO_DARK"
	TypeResume               = "RESUME"
	TypeRefreshPolicy        = "REFRESH_POLICY"
	TypeSetHeartbeatInterval = "SET_HEARTBEAT_INTERVAL"
	TypeFlushStats           = "FLUSH_STATS"
)

// Directive is a single control instruction as carried in a Collector
// response envelope's result.directives array.
type Directive struct {
	Type   string      `json:"type"`
	Value  interface{} `json:"value,omitempty"`
	TTLSec *int        `json:"ttlSec,omitempty"`
}

// ParseEnvelope extracts the directive list from a decoded Collector
// response body of the shape {"result": {"directives": [...]}}. Malformed
// or absent fields yield an empty, non-nil slice rather than an error;
// directive application is always best-effort.
func ParseEnvelope(body map[string]interface{}) []Directive {
	parsed := []Directive{}

	result, ok := body["result"].(map[string]interface{})
	if !ok {
		return parsed
	}
	raw, ok := result["directives"].([]interface{})
	if !ok {
		return parsed
	}

	for _, item := range raw {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		dtype, _ := obj["type"].(string)
		if dtype == "" {
			continue
		}
		d := Directive{Type: dtype, Value: obj["value"]}
		if ttl, ok := obj["ttlSec"].(float64); ok {
			v := int(ttl)
			d.TTLSec = &v
		}
		parsed = append(parsed, d)
	}
	return parsed
}
