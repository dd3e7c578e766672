package grader

import (
	"fmt"
	"regexp"
	"strings"
)

// Pre-submission format checking. This is the standalone linter students
// run before uploading; the orchestrator itself never looks at filenames.

var studentFilePattern = regexp.MustCompile(`(?i)^\d{4}[A-Z0-9]{4}\d{4}[A-Z]\.sql$`)

// ValidStudentFilename reports whether a submission filename is a valid
// student identifier, e.g. 2023A7PS0043H.sql.
func ValidStudentFilename(name string) bool {
	return studentFilePattern.MatchString(name)
}

type FindingLevel int

const (
	FindingPass FindingLevel = iota
	FindingWarn
	FindingFail
)

func (l FindingLevel) String() string {
	switch l {
	case FindingPass:
		return "PASS"
	case FindingWarn:
		return "WARN"
	default:
		return "FAIL"
	}
}

// Finding is one per-question format check result. Index 0 marks a
// file-level finding.
type Finding struct {
	Index   int
	Level   FindingLevel
	Message string
}

// CheckFormat lints a submission's marker structure against the expected
// question count. A missing terminator is only a warning; the evaluation
// engine does not require it.
func CheckFormat(content string, expectedQuestions int) []Finding {
	queries, err := ParseQuerySet(content, expectedQuestions)
	if err != nil {
		return []Finding{{Level: FindingFail, Message: err.Error()}}
	}

	findings := make([]Finding, 0, expectedQuestions)
	for index := 1; index <= expectedQuestions; index++ {
		sql, ok := queries.Lookup(index)
		if !ok {
			findings = append(findings, Finding{
				Index:   index,
				Level:   FindingFail,
				Message: fmt.Sprintf("marker --%d-- is missing", index),
			})
			continue
		}
		if !strings.HasSuffix(strings.TrimSpace(sql), ";") {
			findings = append(findings, Finding{
				Index:   index,
				Level:   FindingWarn,
				Message: "marker found, but query might be missing a semicolon",
			})
			continue
		}
		findings = append(findings, Finding{
			Index:   index,
			Level:   FindingPass,
			Message: "correctly formatted",
		})
	}

	return findings
}

// FormatOK reports whether a finding list contains no failures.
func FormatOK(findings []Finding) bool {
	for _, f := range findings {
		if f.Level == FindingFail {
			return false
		}
	}
	return true
}
