package grader

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbslab/labgrader/config"
)

const twoQuestionModel = `--1--
SELECT * FROM Student WHERE marks > 95;
--2--
SELECT name FROM Student WHERE id = 1;
`

func testConfig(t *testing.T, expectedQuestions int) config.GraderConfig {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "queries"), 0o755))

	return config.GraderConfig{
		LoggerConfig: testLoggerConfig(),
		DBConfig: config.DBConfig{
			Driver: config.DriverSQLite,
			Path:   filepath.Join(dir, "grader.db"),
		},
		Paths: config.PathsConfig{
			SchemaFile:  filepath.Join(dir, "schema.sql"),
			ModelFile:   filepath.Join(dir, "model_solution.sql"),
			QueriesDir:  filepath.Join(dir, "queries"),
			LogsDir:     filepath.Join(dir, "logs"),
			ResultsFile: filepath.Join(dir, "results.csv"),
		},
		ExpectedQuestions: expectedQuestions,
		QueryTimeoutMS:    2000,
	}
}

func runBatch(t *testing.T, cfg config.GraderConfig, schemaSQL, modelSQL string, students map[string]string) {
	t.Helper()

	require.NoError(t, os.WriteFile(cfg.Paths.SchemaFile, []byte(schemaSQL), 0o644))
	require.NoError(t, os.WriteFile(cfg.Paths.ModelFile, []byte(modelSQL), 0o644))
	for name, content := range students {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.QueriesDir, name), []byte(content), 0o644))
	}

	g := New(cfg)
	require.NoError(t, g.Setup())
	defer g.Close()

	require.NoError(t, g.Run(context.Background()))
}

func readResults(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	return records
}

func hasResultRow(records [][]string, studentID string) bool {
	for _, r := range records[1:] {
		if r[0] == studentID {
			return true
		}
	}
	return false
}

func resultRow(t *testing.T, records [][]string, studentID string) []string {
	t.Helper()

	for _, r := range records[1:] {
		if r[0] == studentID {
			return r
		}
	}
	t.Fatalf("no result row for %s", studentID)
	return nil
}

func TestRunBatch(t *testing.T) {
	cfg := testConfig(t, 2)

	students := map[string]string{
		// DML persists for this student's own later questions by contract.
		"2023A7PS0001H.sql": "--1--\nDELETE FROM Student;\n--2--\nSELECT name FROM Student WHERE id = 1;\n",
		// Wrong predicate: one row short.
		"2023A7PS0002H.sql": "--1--\nSELECT * FROM Student WHERE marks > 98;\n--2--\nSELECT name FROM Student WHERE id = 1;\n",
		// Broken question 1 must not poison question 2.
		"2023A7PS0003H.sql": "--1--\nSELEC * FROM Student;\n--2--\nSELECT name FROM Student WHERE id = 1;\n",
		// Missing marker --2--.
		"2023A7PS0004H.sql": "--1--\nSELECT * FROM Student WHERE marks > 95;\n",
		// No markers at all.
		"2023A7PS0005H.sql": "SELECT * FROM Student;\n",
		// Fully correct, with a different row order on question 1.
		"2023A7PS0006H.sql": "--1--\nSELECT * FROM Student WHERE marks > 95 ORDER BY marks ASC;\n--2--\nSELECT name FROM Student WHERE id = 1;\n",
	}

	runBatch(t, cfg, studentSchema, twoQuestionModel, students)

	records := readResults(t, cfg.Paths.ResultsFile)
	require.Len(t, records, 7)
	assert.Equal(t, []string{"StudentID", "Q1", "Q2", "Total"}, records[0])

	assert.Equal(t, []string{"2023A7PS0001H", "FAIL", "FAIL", "0/2"}, resultRow(t, records, "2023A7PS0001H"))
	assert.Equal(t, []string{"2023A7PS0002H", "FAIL", "PASS", "1/2"}, resultRow(t, records, "2023A7PS0002H"))
	assert.Equal(t, []string{"2023A7PS0003H", "FAIL", "PASS", "1/2"}, resultRow(t, records, "2023A7PS0003H"))
	assert.Equal(t, []string{"2023A7PS0004H", "PASS", "FAIL", "1/2"}, resultRow(t, records, "2023A7PS0004H"))
	assert.Equal(t, []string{"2023A7PS0005H", "FAIL", "FAIL", "0/2"}, resultRow(t, records, "2023A7PS0005H"))
	// The reset before this student wiped 2023A7PS0001H's DELETE.
	assert.Equal(t, []string{"2023A7PS0006H", "PASS", "PASS", "2/2"}, resultRow(t, records, "2023A7PS0006H"))

	t.Run("per-student logs", func(t *testing.T) {
		read := func(id string) string {
			data, err := os.ReadFile(filepath.Join(cfg.Paths.LogsDir, id+".log"))
			require.NoError(t, err)
			return string(data)
		}

		missingRowLog := read("2023A7PS0002H")
		assert.Contains(t, missingRowLog, "STUDENT ID: 2023A7PS0002H")
		assert.Contains(t, missingRowLog, "EXPECTED OUTPUT:")
		assert.Contains(t, missingRowLog, "STUDENT OUTPUT:")
		assert.Contains(t, missingRowLog, "Missing rows")
		assert.Contains(t, missingRowLog, "'Sid'")
		assert.Contains(t, missingRowLog, "SCORE: 1/2")

		brokenQueryLog := read("2023A7PS0003H")
		assert.Contains(t, brokenQueryLog, "QUESTION 1: FAIL")
		assert.Contains(t, brokenQueryLog, "QUESTION 2: PASS")

		missingAnswerLog := read("2023A7PS0004H")
		assert.Contains(t, missingAnswerLog, "missing answer")

		formatLog := read("2023A7PS0005H")
		assert.Contains(t, formatLog, "format error")
	})
}

func TestRunSingleQuestionConfiguration(t *testing.T) {
	cfg := testConfig(t, 1)

	students := map[string]string{
		// The whole file is question 1 when no markers are present.
		"2023A7PS0010H.sql": "SELECT * FROM Student WHERE marks > 95;\n",
		"2023A7PS0011H.sql": "SELECT * FROM Student WHERE marks > 98;\n",
	}

	runBatch(t, cfg, studentSchema, "SELECT * FROM Student WHERE marks > 95;\n", students)

	records := readResults(t, cfg.Paths.ResultsFile)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"StudentID", "Result"}, records[0])
	assert.Equal(t, []string{"2023A7PS0010H", "PASS"}, resultRow(t, records, "2023A7PS0010H"))
	assert.Equal(t, []string{"2023A7PS0011H", "FAIL"}, resultRow(t, records, "2023A7PS0011H"))
}

func TestRunFailsWhenModelSolutionIsBroken(t *testing.T) {
	cfg := testConfig(t, 1)

	require.NoError(t, os.WriteFile(cfg.Paths.SchemaFile, []byte(studentSchema), 0o644))
	require.NoError(t, os.WriteFile(cfg.Paths.ModelFile, []byte("SELECT * FROM Missing;\n"), 0o644))
	writeTestFile(t, cfg.Paths.QueriesDir, "2023A7PS0001H.sql", "SELECT 1;\n")

	g := New(cfg)
	require.NoError(t, g.Setup())
	defer g.Close()

	err := g.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model solution")

	// No student was processed, so no results table exists.
	_, statErr := os.Stat(cfg.Paths.ResultsFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunFailsWhenModelQuestionCountMismatches(t *testing.T) {
	cfg := testConfig(t, 2)

	require.NoError(t, os.WriteFile(cfg.Paths.SchemaFile, []byte(studentSchema), 0o644))
	require.NoError(t, os.WriteFile(cfg.Paths.ModelFile, []byte("--1--\nSELECT 1;\n"), 0o644))

	g := New(cfg)
	require.NoError(t, g.Setup())
	defer g.Close()

	err := g.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects 2")
}

func TestRunCancelledBeforeStart(t *testing.T) {
	cfg := testConfig(t, 1)

	require.NoError(t, os.WriteFile(cfg.Paths.SchemaFile, []byte(studentSchema), 0o644))
	require.NoError(t, os.WriteFile(cfg.Paths.ModelFile, []byte("SELECT name FROM Student;\n"), 0o644))
	writeTestFile(t, cfg.Paths.QueriesDir, "2023A7PS0001H.sql", "SELECT name FROM Student;\n")

	g := New(cfg)
	require.NoError(t, g.Setup())
	defer g.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, g.Run(ctx))

	// Nothing ran, so no results table was created.
	_, statErr := os.Stat(cfg.Paths.ResultsFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunCancelledMidBatch(t *testing.T) {
	cfg := testConfig(t, 2)
	cfg.QueryTimeoutMS = 10000

	model := "--1--\nSELECT name FROM Student WHERE id = 1;\n--2--\nSELECT name FROM Student WHERE id = 2;\n"
	correct := "--1--\nSELECT name FROM Student WHERE id = 1;\n--2--\nSELECT name FROM Student WHERE id = 2;\n"

	students := map[string]string{
		"2023A7PS0001H.sql": correct,
		// Question 1 is correct; question 2 runs until the batch deadline
		// fires, so this student is in flight at cancellation.
		"2023A7PS0002H.sql": "--1--\nSELECT name FROM Student WHERE id = 1;\n--2--\nWITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x+1 FROM c) SELECT count(*) FROM c;\n",
		"2023A7PS0003H.sql": correct,
	}

	require.NoError(t, os.WriteFile(cfg.Paths.SchemaFile, []byte(studentSchema), 0o644))
	require.NoError(t, os.WriteFile(cfg.Paths.ModelFile, []byte(model), 0o644))
	for name, content := range students {
		writeTestFile(t, cfg.Paths.QueriesDir, name, content)
	}

	g := New(cfg)
	require.NoError(t, g.Setup())
	defer g.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := g.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Only fully completed students keep their rows. The student in
	// flight at cancellation gets no row at all: their correct question 1
	// must not end up recorded inside an all-but-abandoned report. The
	// third student was never started.
	records := readResults(t, cfg.Paths.ResultsFile)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"2023A7PS0001H", "PASS", "PASS", "2/2"}, resultRow(t, records, "2023A7PS0001H"))
	assert.False(t, hasResultRow(records, "2023A7PS0002H"))
	assert.False(t, hasResultRow(records, "2023A7PS0003H"))
}
