package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/fieldflow/internal/ir"
)

// marshalDefinition converts a definition to canonical JSON TEXT, so the
// stored text hashes to the stored hash.
func marshalDefinition(def ir.Definition) (string, error) {
	data, err := def.Canonical()
	if err != nil {
		return "", fmt.Errorf("marshal definition: %w", err)
	}
	return string(data), nil
}

func unmarshalDefinition(data string) (ir.Definition, error) {
	var def ir.Definition
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return ir.Definition{}, fmt.Errorf("unmarshal definition: %w", err)
	}
	def.Sort()
	return def, nil
}

// marshalPath stores a keypath as a JSON array of strings.
func marshalPath(path []string) (string, error) {
	if path == nil {
		path = []string{}
	}
	data, err := ir.MarshalCanonical(toArray(path))
	if err != nil {
		return "", fmt.Errorf("marshal path: %w", err)
	}
	return string(data), nil
}

func unmarshalPath(data string) ([]string, error) {
	var path []string
	if err := json.Unmarshal([]byte(data), &path); err != nil {
		return nil, fmt.Errorf("unmarshal path: %w", err)
	}
	return path, nil
}

func toArray(path []string) ir.Array {
	arr := make(ir.Array, len(path))
	for i, s := range path {
		arr[i] = ir.String(s)
	}
	return arr
}

// Timestamps are stored as fixed-width UTC text so they sort correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
