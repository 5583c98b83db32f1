package pionengine

import (
	"encoding/json"
	"sort"

	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/rtcbridge/pkg/engine"
)

// debugOnlyTypes are omitted at the standard output level.
var debugOnlyTypes = map[string]bool{
	string(webrtc.StatsTypeCertificate): true,
	string(webrtc.StatsTypeCodec):       true,
}

// convertStats flattens a pion report into engine reports sorted by id.
func convertStats(report webrtc.StatsReport, level engine.StatsOutputLevel) []engine.StatsReport {
	out := make([]engine.StatsReport, 0, len(report))
	for id, st := range report {
		data, err := json.Marshal(st)
		if err != nil {
			continue
		}
		var values map[string]any
		if err := json.Unmarshal(data, &values); err != nil {
			continue
		}

		r := engine.StatsReport{ID: id}
		if t, ok := values["type"].(string); ok {
			r.Type = t
		}
		if ts, ok := values["timestamp"].(float64); ok {
			r.TimestampUs = int64(ts * 1000)
		}
		if level == engine.StatsOutputLevelStandard && debugOnlyTypes[r.Type] {
			continue
		}
		delete(values, "id")
		delete(values, "type")
		delete(values, "timestamp")
		r.Values = values
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
