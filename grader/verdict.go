package grader

import "fmt"

type Status int

const (
	Fail Status = iota
	Pass
)

func (s Status) String() string {
	if s == Pass {
		return "PASS"
	}
	return "FAIL"
}

// QuestionVerdict is the graded outcome of one question for one student.
// Diff carries the mismatch description (or the execution error text) and
// is empty for a clean pass.
type QuestionVerdict struct {
	Index  int
	Status Status
	Diff   string
}

// QuestionRecord pairs a verdict with the result sets that produced it,
// so the per-student log can show expected and actual output side by side.
// Actual is nil when the student's query failed or was never executed.
type QuestionRecord struct {
	QuestionVerdict

	Expected *ResultSet
	Actual   *ResultSet
}

// StudentReport aggregates one student's verdicts. It lives only for the
// duration of that student's evaluation step.
type StudentReport struct {
	StudentID string
	Records   []QuestionRecord
	Passed    int
	Total     int
}

func (r *StudentReport) Score() string {
	return fmt.Sprintf("%d/%d", r.Passed, r.Total)
}
