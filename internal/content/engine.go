// Package content renders notification text templates. Placeholders use
// {{path.to.value}} syntax and resolve first against a variables map,
// then against the live entity record by dotted path. Unresolved
// placeholders are left as literal text and reported, never errors.
package content

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Render substitutes placeholders in text. vars wins over entity; a
// path missing from both leaves the placeholder literal and adds it to
// the returned missing list.
func Render(text string, vars map[string]any, entity map[string]any) (string, []string) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		path := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := lookup(vars, path); ok {
			return stringify(v)
		}
		if v, ok := lookup(entity, path); ok {
			return stringify(v)
		}
		missing = append(missing, path)
		return match
	})
	return out, missing
}

// Validate reports the placeholders in text that neither vars nor
// entity can resolve. Used by preview paths before a template is saved.
func Validate(text string, vars map[string]any, entity map[string]any) []string {
	_, missing := Render(text, vars, entity)
	return missing
}

// Variables lists every placeholder path referenced by text.
func Variables(text string) []string {
	var paths []string
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		paths = append(paths, m[1])
	}
	return paths
}

// BaseVars builds the time-derived variables available to every
// template, in the user's local zone.
func BaseVars(now time.Time, loc *time.Location) map[string]any {
	local := now.In(loc)
	return map[string]any{
		"date":    local.Format("2006-01-02"),
		"time":    local.Format("15:04"),
		"weekday": local.Weekday().String(),
	}
}

func lookup(record map[string]any, path string) (any, bool) {
	if record == nil {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur any = record
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}
