package grader

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Query is one marker-delimited SQL statement identified by its question index.
type Query struct {
	Index int
	SQL   string
}

// QuerySet is a file's queries ordered by question index.
type QuerySet []Query

func (qs QuerySet) Lookup(index int) (string, bool) {
	for _, q := range qs {
		if q.Index == index {
			return q.SQL, true
		}
	}
	return "", false
}

func (qs QuerySet) Indices() []int {
	indices := make([]int, len(qs))
	for i, q := range qs {
		indices[i] = q.Index
	}
	return indices
}

// FormatError reports a submission file that cannot be split into questions.
// It is a per-student condition, never a batch failure.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "format error: " + e.Reason
}

var (
	markerPattern    = regexp.MustCompile(`^--(\d+)--$`)
	badMarkerPattern = regexp.MustCompile(`^--([^-\s]+)--$`)
)

// ParseQuerySet splits raw file text into a QuerySet using `--N--` markers.
// A marker must stand alone on its line; everything up to the next marker
// (or EOF) is that question's SQL body. A file without any markers is
// treated as a single question 1 when exactly one question is expected,
// and is a FormatError otherwise.
func ParseQuerySet(text string, expectedQuestions int) (QuerySet, error) {
	var (
		queries QuerySet
		current = -1
		body    strings.Builder
	)

	flush := func() error {
		if current < 0 {
			return nil
		}
		sql := strings.TrimSpace(body.String())
		if sql == "" {
			return &FormatError{Reason: fmt.Sprintf("marker --%d-- has no query after it", current)}
		}
		queries = append(queries, Query{Index: current, SQL: sql})
		return nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := markerPattern.FindStringSubmatch(trimmed); m != nil {
			index, err := strconv.Atoi(m[1])
			if err != nil || index < 1 {
				return nil, &FormatError{Reason: fmt.Sprintf("invalid question index in marker %q", trimmed)}
			}
			if err := flush(); err != nil {
				return nil, err
			}
			if _, ok := queries.Lookup(index); ok {
				return nil, &FormatError{Reason: fmt.Sprintf("duplicate marker --%d--", index)}
			}
			current = index
			body.Reset()
			continue
		}
		if badMarkerPattern.MatchString(trimmed) {
			return nil, &FormatError{Reason: fmt.Sprintf("non-numeric question index in marker %q", trimmed)}
		}
		if current >= 0 {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if len(queries) == 0 {
		whole := strings.TrimSpace(text)
		if whole == "" {
			return nil, &FormatError{Reason: "file is empty"}
		}
		if expectedQuestions > 1 {
			return nil, &FormatError{Reason: fmt.Sprintf("no question markers found, expected %d", expectedQuestions)}
		}
		return QuerySet{{Index: 1, SQL: whole}}, nil
	}

	sort.Slice(queries, func(i, j int) bool { return queries[i].Index < queries[j].Index })

	return queries, nil
}

// prepareStatement strips surrounding whitespace and the trailing terminator
// so the statement can be handed to the driver as-is. A missing semicolon is
// not an error here; statement validity is the engine's call.
func prepareStatement(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")

	return strings.TrimSpace(sql)
}
