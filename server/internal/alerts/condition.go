package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/instrumentkit/instrumentkit/pkg/types"
)

// condition is a parsed "field operator value" rule expression.
//
// Supported expressions:
//
//	score < 60
//	pass_rate < 0.9
//	completion_rate < 1
//	collection_rate < 1
//	failed > 0
//	collector_errors > 0
//	elapsed_ms > 600000
//	state == critical
//	complete == false
//	scenario == screenshot
type condition struct {
	field string
	op    string
	text  string
	num   float64
}

var numericFields = map[string]func(*types.RunReport) float64{
	"score":            func(r *types.RunReport) float64 { return r.Health.Score },
	"pass_rate":        func(r *types.RunReport) float64 { return r.Health.PassRate },
	"completion_rate":  func(r *types.RunReport) float64 { return r.Health.CompletionRate },
	"collection_rate":  func(r *types.RunReport) float64 { return r.Health.CollectionRate },
	"tests":            func(r *types.RunReport) float64 { return float64(r.Tests) },
	"passed":           func(r *types.RunReport) float64 { return float64(r.Passed) },
	"failed":           func(r *types.RunReport) float64 { return float64(r.Failed) },
	"ignored":          func(r *types.RunReport) float64 { return float64(r.Ignored) },
	"collector_errors": func(r *types.RunReport) float64 { return float64(len(r.CollectorErrors)) },
	"elapsed_ms":       func(r *types.RunReport) float64 { return float64(r.ElapsedMs) },
}

var textFields = map[string]func(*types.RunReport) string{
	"state":    func(r *types.RunReport) string { return r.Health.State },
	"scenario": func(r *types.RunReport) string { return r.Scenario },
	"complete": func(r *types.RunReport) string { return strconv.FormatBool(r.Complete) },
}

func parseCondition(expr string) (condition, error) {
	parts := strings.Fields(expr)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("alerts: condition %q: want \"field op value\"", expr)
	}
	c := condition{field: parts[0], op: parts[1], text: parts[2]}

	if _, ok := textFields[c.field]; ok {
		if c.op != "==" && c.op != "!=" {
			return condition{}, fmt.Errorf("alerts: condition %q: %s supports == and != only", expr, c.field)
		}
		return c, nil
	}
	if _, ok := numericFields[c.field]; !ok {
		return condition{}, fmt.Errorf("alerts: condition %q: unknown field %q", expr, c.field)
	}
	switch c.op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return condition{}, fmt.Errorf("alerts: condition %q: unknown operator %q", expr, c.op)
	}
	n, err := strconv.ParseFloat(c.text, 64)
	if err != nil {
		return condition{}, fmt.Errorf("alerts: condition %q: %w", expr, err)
	}
	c.num = n
	return c, nil
}

// eval reports whether the condition holds for rep, and the numeric value
// that was compared (zero for text fields).
func (c condition) eval(rep *types.RunReport) (bool, float64) {
	if get, ok := textFields[c.field]; ok {
		eq := get(rep) == c.text
		if c.op == "!=" {
			return !eq, 0
		}
		return eq, 0
	}
	v := numericFields[c.field](rep)
	return compareFloat(v, c.op, c.num), v
}

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
	case "!=":
		return v != threshold
	default:
		return false
	}
}
