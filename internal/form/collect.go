package form

import (
	"math"
	"strconv"

	"github.com/hearthhq/hearth/internal/settings"
)

// Collect rebuilds partial trees from the mounted fields, one per document.
// Unmounted fields (nil Widget) are skipped. Intent-backed kinds are not
// read from widget state at all: their edits were applied to the canonical
// tree the moment the user acted, so collection re-reads the tree's current
// value for them. The partials are meant to be folded into the canonical
// trees with settings.Merge.
func Collect(fields []Field, primary, auxiliary settings.Tree) (settings.Tree, settings.Tree) {
	pp, ap := settings.Tree{}, settings.Tree{}
	for _, f := range fields {
		canon, partial := primary, pp
		if f.Doc == DocAuxiliary {
			canon, partial = auxiliary, ap
		}
		v, ok := collectField(f, canon)
		if !ok {
			continue
		}
		settings.ForceSet(partial, f.Path, v)
	}
	return pp, ap
}

func collectField(f Field, canon settings.Tree) (any, bool) {
	switch f.Kind {
	case MultiSelect, TagList, EntityList:
		// Always-already-applied: the canonical tree is the source of
		// truth whether or not the widget is mounted.
		v, ok := settings.Get(canon, f.Path)
		if !ok {
			return nil, false
		}
		return settings.CloneValue(v), true
	}

	if f.Widget == nil {
		return nil, false
	}
	w := f.Widget

	switch f.Kind {
	case Toggle:
		return w.Checked, true
	case Text, EntitySingle:
		return w.Value, true
	case Number:
		return collectNumber(f, w, canon), true
	case KeyValueMap:
		return collectKeyValueMap(w.Rows), true
	case RoomEntityMap:
		return collectRoomMap(w.RoomRows), true
	case RecordList:
		return collectRecords(w.Records, f.Required), true
	}
	return nil, false
}

// collectNumber float-parses the rendered text, then coerces to integer
// when the widget's step has no fractional part — the only signal of
// integer vs. float semantics in a schema-less tree. Unparsable input
// falls back to the tree's current value rather than failing.
func collectNumber(f Field, w *Widget, canon settings.Tree) any {
	step := f.Step
	if step == 0 {
		step = 1
	}
	integral := math.Mod(step, 1) == 0

	v, err := strconv.ParseFloat(w.Value, 64)
	if err != nil || math.IsNaN(v) {
		if cur, ok := settings.Get(canon, f.Path); ok {
			return cur
		}
		if integral {
			return int64(0)
		}
		return float64(0)
	}
	if integral {
		// Clamp first: int64 conversion of an out-of-range float is
		// implementation-defined.
		switch {
		case v >= math.MaxInt64:
			return int64(math.MaxInt64)
		case v <= math.MinInt64:
			return int64(math.MinInt64)
		}
		return int64(v)
	}
	return v
}

// collectKeyValueMap rebuilds the map from rendered rows, dropping
// empty-key rows. A value becomes a number iff it survives a float→string
// round trip unchanged, else it stays a string.
func collectKeyValueMap(rows []Row) settings.Tree {
	out := settings.Tree{}
	for _, row := range rows {
		if row.Key == "" {
			continue
		}
		if n, err := strconv.ParseFloat(row.Value, 64); err == nil &&
			strconv.FormatFloat(n, 'f', -1, 64) == row.Value {
			out[row.Key] = n
			continue
		}
		out[row.Key] = row.Value
	}
	return out
}

func collectRoomMap(rows []RoomRow) settings.Tree {
	out := settings.Tree{}
	for _, row := range rows {
		if row.Room == "" || row.EntityID == "" {
			continue
		}
		out[row.Room] = row.EntityID
	}
	return out
}

func collectRecords(records []map[string]string, required string) []any {
	out := make([]any, 0, len(records))
	for _, rec := range records {
		if required != "" && rec[required] == "" {
			continue
		}
		entry := settings.Tree{}
		for k, v := range rec {
			entry[k] = v
		}
		out = append(out, entry)
	}
	return out
}
