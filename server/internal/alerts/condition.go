package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nusantararadius/notifyhub/pkg/types"
)

// evalCondition evaluates a rule condition string against a snapshot.
//
// Supported expressions (field operator value):
//
//	server_load > 80
//	active_users < 10
//	total_revenue <= 0
//	uptime < 99.5
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, snap types.MetricsSnapshot) (bool, float64) {
	field, op, threshold, err := parseCondition(cond)
	if err != nil {
		return false, 0
	}
	v, _ := numericField(field, snap)
	return compareFloat(v, op, threshold), v
}

// ValidateCondition reports whether cond is a well-formed rule condition.
func ValidateCondition(cond string) error {
	_, _, _, err := parseCondition(cond)
	return err
}

func parseCondition(cond string) (field, op string, threshold float64, err error) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return "", "", 0, fmt.Errorf("condition %q: want \"field op value\"", cond)
	}
	field, op = parts[0], parts[1]
	if _, ok := numericField(field, types.MetricsSnapshot{}); !ok {
		return "", "", 0, fmt.Errorf("condition %q: unknown field %q", cond, field)
	}
	switch op {
	case ">", ">=", "<", "<=", "==":
	default:
		return "", "", 0, fmt.Errorf("condition %q: unknown operator %q", cond, op)
	}
	threshold, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return "", "", 0, fmt.Errorf("condition %q: threshold: %w", cond, err)
	}
	return field, op, threshold, nil
}

// numericField maps a field name to its value in the snapshot.
func numericField(field string, snap types.MetricsSnapshot) (float64, bool) {
	switch field {
	case "active_users":
		return float64(snap.ActiveUsers), true
	case "total_revenue":
		return float64(snap.TotalRevenue), true
	case "server_load":
		return snap.ServerLoad, true
	case "uptime":
		return snap.Uptime, true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
