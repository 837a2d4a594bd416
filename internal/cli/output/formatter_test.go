package output

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Inner struct {
		Enabled bool `json:"enabled"`
	} `json:"inner"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewFormatter(t *testing.T) {
	if _, ok := NewFormatter(FormatJSON).(*JSONFormatter); !ok {
		t.Error("json should give JSONFormatter")
	}
	if _, ok := NewFormatter(FormatYAML).(*YAMLFormatter); !ok {
		t.Error("yaml should give YAMLFormatter")
	}
	if _, ok := NewFormatter(FormatTable).(*TableFormatter); !ok {
		t.Error("table should give TableFormatter")
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	s := sample{Name: "a", Count: 2}
	if err := (&JSONFormatter{}).Format(&buf, s); err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !strings.Contains(buf.String(), `"count": 2`) {
		t.Errorf("output = %s", buf.String())
	}
}

func TestYAMLFormatter_UsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	s := sample{Name: "snap", Count: 3}
	s.Inner.Enabled = true
	if err := (&YAMLFormatter{}).Format(&buf, s); err != nil {
		t.Fatalf("Format: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"name: snap", "count: 3", "inner:\n  enabled: true"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableFormatter_Struct(t *testing.T) {
	var buf bytes.Buffer
	s := sample{Name: "", Count: 7}
	if err := (&TableFormatter{}).Format(&buf, s); err != nil {
		t.Fatalf("Format: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "FIELD") {
		t.Errorf("header = %q", lines[0])
	}
	// rows are sorted by flattened key
	if !strings.HasPrefix(lines[1], "count") || !strings.Contains(lines[1], "7") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "inner.enabled") {
		t.Errorf("row 2 = %q", lines[2])
	}
	if !strings.HasSuffix(lines[3], "-") {
		t.Errorf("empty string should render as '-', got %q", lines[3])
	}
}

type tabled []string

func (t tabled) Table() *Table {
	tbl := NewTable("ID")
	for _, id := range t {
		tbl.AddRow(id)
	}
	return tbl
}

func TestTableFormatter_Tabler(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{NoHeaders: true}).Format(&buf, tabled{"x", "y"}); err != nil {
		t.Fatalf("Format: %v", err)
	}
	if buf.String() != "x\ny\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestTable_RenderAligns(t *testing.T) {
	tbl := NewTable("A", "B")
	tbl.AddRow("long-value", "1")
	tbl.AddRow("s", "2")

	var buf bytes.Buffer
	if err := tbl.Render(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	col := strings.Index(lines[1], "1")
	if strings.Index(lines[2], "2") != col || strings.Index(lines[0], "B") != col {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}
