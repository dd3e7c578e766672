package grader

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Compare decides one question's verdict. Row equality is multiset equality
// over canonical row encodings: fetch order is irrelevant, multiplicities
// are not. Column count must match; column name differences are noted in
// the diff but row data is authoritative.
func Compare(index int, expected *ResultSet, actual QueryOutcome) QuestionVerdict {
	if actual.Failed() {
		return QuestionVerdict{Index: index, Status: Fail, Diff: actual.Err}
	}

	var notes []string

	got := actual.Result
	if len(expected.Columns) != len(got.Columns) {
		diff := fmt.Sprintf(
			"Column count mismatch:\nExpected: %s\nActual:   %s",
			renderColumns(expected.Columns), renderColumns(got.Columns),
		)
		return QuestionVerdict{Index: index, Status: Fail, Diff: diff}
	}
	if !columnNamesEqual(expected.Columns, got.Columns) {
		notes = append(notes, fmt.Sprintf(
			"Column name mismatch (row data decides):\nExpected: %s\nActual:   %s",
			renderColumns(expected.Columns), renderColumns(got.Columns),
		))
	}

	missing, extra := diffRows(expected.Rows, got.Rows)
	if len(missing) > 0 {
		notes = append(notes, "Missing rows: "+renderRowSet(missing))
	}
	if len(extra) > 0 {
		notes = append(notes, "Extra rows: "+renderRowSet(extra))
	}

	if len(missing) > 0 || len(extra) > 0 {
		return QuestionVerdict{Index: index, Status: Fail, Diff: strings.Join(notes, "\n")}
	}

	return QuestionVerdict{Index: index, Status: Pass, Diff: strings.Join(notes, "\n")}
}

type rowTally struct {
	expectedRow []any
	actualRow   []any
	expected    int
	actual      int
}

// diffRows returns the distinct rows under-represented in actual ("missing")
// and over-represented in actual ("extra"), as sets. Each side keeps its own
// representative tuple: canonically equal values can still render differently
// (1e8 as int vs float), and the diff must show what each side returned.
func diffRows(expected, actual [][]any) (missing, extra [][]any) {
	tallies := map[string]*rowTally{}
	tally := func(row []any) *rowTally {
		key := encodeRow(row)
		t, ok := tallies[key]
		if !ok {
			t = &rowTally{}
			tallies[key] = t
		}
		return t
	}

	for _, row := range expected {
		t := tally(row)
		if t.expectedRow == nil {
			t.expectedRow = row
		}
		t.expected++
	}
	for _, row := range actual {
		t := tally(row)
		if t.actualRow == nil {
			t.actualRow = row
		}
		t.actual++
	}

	for _, t := range tallies {
		switch {
		case t.expected > t.actual:
			missing = append(missing, t.expectedRow)
		case t.actual > t.expected:
			extra = append(extra, t.actualRow)
		}
	}

	return missing, extra
}

// encodeRow builds a canonical key for multiset counting. Numeric scalars
// are normalized through decimal so that value equality wins over
// representation (1 vs 1.0 vs driver float widths); strings stay exact,
// NULL only ever equals NULL.
func encodeRow(row []any) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = encodeScalar(v)
	}
	return strings.Join(parts, "\x1f")
}

func encodeScalar(v any) string {
	switch value := v.(type) {
	case nil:
		return "z:"
	case string:
		return "s:" + value
	case []byte:
		return "s:" + string(value)
	case bool:
		return fmt.Sprintf("b:%t", value)
	case int:
		return "n:" + decimal.NewFromInt(int64(value)).String()
	case int32:
		return "n:" + decimal.NewFromInt(int64(value)).String()
	case int64:
		return "n:" + decimal.NewFromInt(value).String()
	case float32:
		return "n:" + decimal.NewFromFloat32(value).String()
	case float64:
		return "n:" + decimal.NewFromFloat(value).String()
	case time.Time:
		return "t:" + value.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("v:%v", value)
	}
}

func columnNamesEqual(expected, actual []string) bool {
	for i := range expected {
		if !strings.EqualFold(expected[i], actual[i]) {
			return false
		}
	}
	return true
}

func renderColumns(columns []string) string {
	return "[" + strings.Join(columns, ", ") + "]"
}

// renderRow prints a row tuple the way it appears in logs and diffs,
// e.g. (2, 'Sid', 98).
func renderRow(row []any) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = renderScalar(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func renderScalar(v any) string {
	switch value := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + value + "'"
	case []byte:
		return "'" + string(value) + "'"
	default:
		return fmt.Sprintf("%v", value)
	}
}

func renderRowSet(rows [][]any) string {
	rendered := make([]string, len(rows))
	for i, row := range rows {
		rendered[i] = renderRow(row)
	}
	sort.Strings(rendered)
	return "{" + strings.Join(rendered, ", ") + "}"
}
