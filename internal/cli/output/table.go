package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
)

// Tabler is implemented by results that know their own tabular layout.
type Tabler interface {
	Table() *Table
}

// TableFormatter formats data as an aligned text table.
type TableFormatter struct {
	NoHeaders bool
}

// Format renders data. A *Table or Tabler renders as is; anything else is
// flattened into FIELD/VALUE rows keyed by its JSON field names.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	var t *Table
	switch v := data.(type) {
	case *Table:
		t = v
	case Tabler:
		t = v.Table()
	default:
		var err error
		if t, err = fieldTable(data); err != nil {
			return err
		}
	}
	return t.render(w, f.NoHeaders)
}

func fieldTable(data any) (*Table, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	t := &Table{Headers: []string{"FIELD", "VALUE"}}
	flatten(t, "", generic)
	return t, nil
}

// flatten adds one row per leaf, joining nested keys with dots.
func flatten(t *Table, prefix string, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			name := k
			if prefix != "" {
				name = prefix + "." + k
			}
			flatten(t, name, val[k])
		}
	default:
		if prefix == "" {
			prefix = "value"
		}
		t.AddRow(prefix, cell(val))
	}
}

func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		if val == "" {
			return "-"
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%.2f", val)
	case []any:
		if len(val) == 0 {
			return "-"
		}
		return fmt.Sprintf("[%d items]", len(val))
	default:
		return fmt.Sprint(val)
	}
}

// Table represents tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render renders the table with headers.
func (t *Table) Render(w io.Writer) error {
	return t.render(w, false)
}

func (t *Table) render(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
