package atlas

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Level is one attribute value attached to a species observation in a cell.
// Source data uses small integers, but free-form strings are accepted too.
type Level string

// IntLevel returns the level for an integer value.
func IntLevel(n int) Level {
	return Level(strconv.Itoa(n))
}

// Int reports the integer value of l, if it has one.
func (l Level) Int() (int, bool) {
	n, err := strconv.Atoi(string(l))
	return n, err == nil
}

// Compare orders levels naturally: integers numerically and before any
// non-numeric level, everything else lexically.
func (l Level) Compare(o Level) int {
	a, aok := l.Int()
	b, bok := o.Int()
	switch {
	case aok && bok:
		return cmp.Compare(a, b)
	case aok:
		return -1
	case bok:
		return 1
	}
	return strings.Compare(string(l), string(o))
}

// MarshalJSON writes integer levels as JSON numbers.
func (l Level) MarshalJSON() ([]byte, error) {
	if n, ok := l.Int(); ok {
		return []byte(strconv.Itoa(n)), nil
	}
	return json.Marshal(string(l))
}

// UnmarshalJSON accepts a JSON number or string.
func (l *Level) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Level(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("level must be a number or string: %w", err)
	}
	*l = numberLevel(n.String())
	return nil
}

// numberLevel stores whole numbers as integer levels, so 2.0 matches 2.
func numberLevel(s string) Level {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Level(strconv.FormatInt(i, 10))
	}
	f, err := strconv.ParseFloat(s, 64)
	if err == nil && f == math.Trunc(f) && math.Abs(f) <= 1<<53 {
		return Level(strconv.FormatInt(int64(f), 10))
	}
	return Level(s)
}

// UnmarshalYAML accepts any scalar node.
func (l *Level) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: level must be a scalar", node.Line)
	}
	switch node.ShortTag() {
	case "!!int", "!!float":
		*l = numberLevel(node.Value)
	default:
		*l = Level(node.Value)
	}
	return nil
}

// CellValues is the set of levels observed for one species in one cell.
type CellValues []Level

// Contains reports whether v holds level l.
func (v CellValues) Contains(l Level) bool {
	return slices.Contains(v, l)
}

// UnmarshalJSON accepts either a list of levels or a single scalar level.
func (v *CellValues) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var levels []Level
		if err := json.Unmarshal(data, &levels); err != nil {
			return err
		}
		*v = levels
		return nil
	}
	var l Level
	if err := l.UnmarshalJSON(data); err != nil {
		return err
	}
	*v = CellValues{l}
	return nil
}

// SortLevels sorts levels in natural order.
func SortLevels(levels []Level) {
	slices.SortFunc(levels, Level.Compare)
}
