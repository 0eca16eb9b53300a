package schema

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strconv"
)

// droppedFields lists the JSON paths present in raw that did not survive decoding
// into decoded. Empty values are ignored since they carry no data.
func droppedFields(raw []byte, decoded any) []string {
	var stored, kept any
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil
	}
	b, err := json.Marshal(decoded)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(b, &kept); err != nil {
		return nil
	}
	var out []string
	collectDropped("", stored, kept, &out)
	slices.Sort(out)
	return out
}

func collectDropped(path string, stored, kept any, out *[]string) {
	switch sv := stored.(type) {
	case map[string]any:
		kv, _ := kept.(map[string]any)
		for k, v := range sv {
			child := k
			if path != "" {
				child = path + "." + k
			}
			next, ok := kv[k]
			if !ok {
				if !isEmptyJSON(v) {
					*out = append(*out, child)
				}
				continue
			}
			collectDropped(child, v, next, out)
		}
	case []any:
		kv, _ := kept.([]any)
		for i, v := range sv {
			if i >= len(kv) {
				break
			}
			collectDropped(path+"["+strconv.Itoa(i)+"]", v, kv[i], out)
		}
	}
}

func isEmptyJSON(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// LogReport records a read-time migration. Replacing stored data with a seed or
// dropping fields during an upgrade is logged at warn level since the next write
// makes it permanent.
func LogReport(ctx context.Context, logger *slog.Logger, key string, report Report) {
	if logger == nil || !report.Migrated() {
		return
	}
	attrs := []any{
		"key", key,
		"from_version", report.FromVersion,
		"to_version", report.ToVersion,
		"steps", report.Steps,
	}
	switch {
	case report.Seeded:
		logger.WarnContext(ctx, "stored document has an unusable schema version, serving a seeded document", attrs...)
	case len(report.DroppedFields) > 0:
		logger.WarnContext(ctx, "document migration dropped stored fields",
			append(attrs, "dropped_fields", report.DroppedFields)...)
	default:
		logger.DebugContext(ctx, "document migrated on read", attrs...)
	}
}
