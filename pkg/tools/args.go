package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/harun/toolgate/pkg/capability"
)

func stringArg(args capability.Args, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// intArg accepts JSON numbers, Go integers and numeric strings
func intArg(args capability.Args, key string) (int64, bool) {
	switch v := args[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		f, err := v.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func unitString(unit capability.Unit, key, fallback string) string {
	if v, ok := unit.Config[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func unitInt(unit capability.Unit, key string, fallback int) int {
	switch v := unit.Config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

// unitDuration reads a duration such as "5s"; bare numbers are seconds
func unitDuration(unit capability.Unit, key string, fallback time.Duration) (time.Duration, error) {
	switch v := unit.Config[key].(type) {
	case nil:
		return fallback, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("invalid %s: %v", key, unit.Config[key])
}
