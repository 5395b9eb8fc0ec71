package board

import (
	"encoding/json"
	"fmt"
	"strings"
)

// componentIdentity is the canonical form a component key is serialized from
type componentIdentity struct {
	Name string `json:"name"`
	Args []any  `json:"args"`
}

// ComponentKey returns the cache key of a component. Two requests with the same
// class and the same arguments (by value, order-sensitive) map to the same key.
// Arguments are normalized through JSON, so 13 and 13.0 are equal and object
// arguments compare independent of key order.
func ComponentKey(class string, args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	b, err := json.Marshal(componentIdentity{Name: class, Args: args})
	if err != nil {
		return "", fmt.Errorf("cannot serialize component identity: %w", err)
	}
	return string(b), nil
}

// formatArgs renders args like a constructor call: (13,"a")
func formatArgs(args []any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			parts = append(parts, fmt.Sprint(a))
			continue
		}
		parts = append(parts, string(b))
	}
	return "(" + strings.Join(parts, ",") + ")"
}
