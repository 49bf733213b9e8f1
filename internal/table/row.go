package table

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Field is one key/value cell of a row.
type Field struct {
	Key   string
	Value any
}

// Row is an ordered list of fields. Column order of a table comes from the
// field order of its first row.
type Row []Field

// Keys returns the field keys in order.
func (r Row) Keys() []string {
	keys := make([]string, len(r))
	for i, f := range r {
		keys[i] = f.Key
	}
	return keys
}

// Get returns the value of the first field named key.
func (r Row) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// RowsFromJSON decodes a JSON array of objects into rows, keeping the key
// order of each object as it appears in the document. Strings, numbers and
// booleans become cell values; nested objects and arrays keep their raw JSON
// text; null becomes nil.
func RowsFromJSON(data []byte) ([]Row, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("rows: invalid JSON")
	}
	return RowsFromResult(gjson.ParseBytes(data))
}

// RowsFromResult is RowsFromJSON for an already parsed document.
func RowsFromResult(doc gjson.Result) ([]Row, error) {
	if !doc.IsArray() {
		return nil, fmt.Errorf("rows: expected a JSON array, got %s", doc.Type)
	}

	items := doc.Array()
	rows := make([]Row, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			return nil, fmt.Errorf("rows: element %d is not an object", i)
		}
		var row Row
		item.ForEach(func(key, value gjson.Result) bool {
			row = append(row, Field{Key: key.String(), Value: cellValue(value)})
			return true
		})
		rows = append(rows, row)
	}
	return rows, nil
}

func cellValue(v gjson.Result) any {
	switch v.Type {
	case gjson.Null:
		return nil
	case gjson.String:
		return v.String()
	case gjson.True, gjson.False:
		return v.Bool()
	default:
		// Numbers keep their literal text, so 1 does not turn into 1.0.
		return v.Raw
	}
}
