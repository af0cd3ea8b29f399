// Package form binds rendered widgets to key-paths and reconstructs, from
// the currently mounted tab, the tree fragment the user can see right now.
// Collection never reaches into other tabs — their values are expected to
// have been merged into the canonical tree when they were last mounted.
package form

// WidgetKind identifies how a widget serializes its on-screen state into
// the tree's native shape.
type WidgetKind int

const (
	// Toggle is a boolean switch.
	Toggle WidgetKind = iota
	// Text is a free-form string input.
	Text
	// Number is a numeric input with a step attribute.
	Number
	// MultiSelect is a chip-based selection over a fixed option set.
	// Intent-backed: the widget mutates the canonical tree directly.
	MultiSelect
	// TagList is a free-form tag editor. Intent-backed.
	TagList
	// KeyValueMap is an editable two-column table.
	KeyValueMap
	// EntitySingle is an entity picker bound to a scalar path.
	EntitySingle
	// EntityList is an entity picker bound to a list path. Intent-backed.
	EntityList
	// RoomEntityMap assigns one entity per room.
	RoomEntityMap
	// RecordList is a dynamic list of uniform records, e.g. household
	// members.
	RecordList
)

// Doc selects which document a field is bound to.
type Doc int

const (
	// DocPrimary is the main settings document.
	DocPrimary Doc = iota
	// DocAuxiliary is the independently persisted household document.
	DocAuxiliary
)

// Row is one rendered row of a key-value table.
type Row struct {
	Key   string
	Value string
}

// RoomRow is one rendered row of a per-room entity map: a known room or a
// manually added one, with the entity currently assigned to it.
type RoomRow struct {
	Room     string
	EntityID string
}

// Widget is the live on-screen state of a mounted widget. Only the fields
// relevant to the kind are populated. A nil Widget means the widget is not
// mounted and the field is skipped during collection.
type Widget struct {
	Value    string              // Text, Number (raw rendered text), EntitySingle
	Checked  bool                // Toggle
	Rows     []Row               // KeyValueMap
	RoomRows []RoomRow           // RoomEntityMap
	Records  []map[string]string // RecordList
}

// Field binds a rendered widget to a key-path.
type Field struct {
	Path     string
	Kind     WidgetKind
	Doc      Doc
	Step     float64 // Number only; 0 means the default step of 1
	Required string  // RecordList only: records missing this column are dropped
	Widget   *Widget
}
