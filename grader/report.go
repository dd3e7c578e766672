package grader

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"
)

var logDump = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	DisableMethods:          true,
	SortKeys:                true,
}

// ReportWriter appends one row per student to the cumulative results table
// and writes one log file per student. Rows are flushed as they are
// appended so a cancelled run still leaves a valid table of completed
// students.
type ReportWriter struct {
	logger  *zap.Logger
	file    *os.File
	table   *csv.Writer
	logsDir string
	indices []int
}

func NewReportWriter(logger *zap.Logger, resultsPath, logsDir string, indices []int) (*ReportWriter, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs directory: %w", err)
	}

	file, err := os.Create(resultsPath)
	if err != nil {
		return nil, fmt.Errorf("create results table: %w", err)
	}

	w := &ReportWriter{
		logger:  logger,
		file:    file,
		table:   csv.NewWriter(file),
		logsDir: logsDir,
		indices: indices,
	}
	if err := w.writeHeader(); err != nil {
		_ = file.Close()
		return nil, err
	}

	return w, nil
}

// Single-question runs keep the original two-column table shape; multi-
// question runs get one verdict column per question plus a total.
func (w *ReportWriter) writeHeader() error {
	header := []string{"StudentID"}
	if len(w.indices) == 1 {
		header = append(header, "Result")
	} else {
		for _, index := range w.indices {
			header = append(header, fmt.Sprintf("Q%d", index))
		}
		header = append(header, "Total")
	}
	if err := w.table.Write(header); err != nil {
		return fmt.Errorf("write results header: %w", err)
	}
	w.table.Flush()

	return w.table.Error()
}

func (w *ReportWriter) Append(report *StudentReport) error {
	record := []string{report.StudentID}
	for _, r := range report.Records {
		record = append(record, r.Status.String())
	}
	if len(w.indices) != 1 {
		record = append(record, report.Score())
	}
	if err := w.table.Write(record); err != nil {
		return fmt.Errorf("append result row: %w", err)
	}
	w.table.Flush()

	return w.table.Error()
}

// WriteLog writes the per-student log: one block per question with the
// expected output, the student's output and the diff (or a pass note).
func (w *ReportWriter) WriteLog(report *StudentReport) error {
	var b strings.Builder

	fmt.Fprintf(&b, "STUDENT ID: %s\n\n", report.StudentID)
	for _, r := range report.Records {
		fmt.Fprintf(&b, "QUESTION %d: %s\n\n", r.Index, r.Status)

		b.WriteString("EXPECTED OUTPUT:\n")
		b.WriteString(dumpResult(r.Expected))
		b.WriteString("\n")

		b.WriteString("STUDENT OUTPUT:\n")
		b.WriteString(dumpResult(r.Actual))
		b.WriteString("\n")

		if r.Status == Pass {
			b.WriteString("RESULT: PASS\n")
			if r.Diff != "" {
				fmt.Fprintf(&b, "NOTE:\n%s\n", r.Diff)
			}
		} else {
			fmt.Fprintf(&b, "DIFF:\n%s\n", r.Diff)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "SCORE: %s\n", report.Score())

	path := filepath.Join(w.logsDir, report.StudentID+".log")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write student log: %w", err)
	}

	w.logger.Info(
		"student report written",
		zap.String("student_id", report.StudentID),
		zap.String("score", report.Score()),
		zap.String("log_path", path),
	)

	return nil
}

func (w *ReportWriter) Close() error {
	w.table.Flush()
	if err := w.table.Error(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

func dumpResult(rs *ResultSet) string {
	if rs == nil {
		return "(no output)\n"
	}

	var b strings.Builder
	b.WriteString("Columns: ")
	b.WriteString(renderColumns(rs.Columns))
	b.WriteString("\nRows:\n")
	b.WriteString(logDump.Sdump(rs.Rows))

	return b.String()
}
