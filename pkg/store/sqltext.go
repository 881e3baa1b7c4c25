package store

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RenderSQL inlines args into the placeholders of query so a statement can
// be printed and replayed with the sqlite3 shell.
func RenderSQL(query string, args ...any) string {
	var b strings.Builder
	next := 0
	for _, r := range collapseSpace(query) {
		if r == '?' && next < len(args) {
			b.WriteString(literal(args[next]))
			next++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case *string:
		if x == nil {
			return "NULL"
		}
		return literal(*x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "NULL"
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case *float64:
		if x == nil {
			return "NULL"
		}
		return literal(*x)
	case *int:
		if x == nil {
			return "NULL"
		}
		return strconv.Itoa(*x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}

// nullFloat converts an optional value for use as a query argument.
func nullFloat(v *float64) any {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
