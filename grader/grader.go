package grader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/dbslab/labgrader/config"
)

// Grader drives the whole evaluation batch: build ground truth from the
// model solution once, then evaluate every student file against it,
// resetting the schema between students. Strictly sequential; everyone
// shares one physical schema and one connection.
type Grader struct {
	logger *zap.Logger
	db     *sqlx.DB
	schema *SchemaManager
	runner *Runner

	cfg config.GraderConfig

	model       QuerySet
	groundTruth map[int]*ResultSet
}

func New(cfg config.GraderConfig) *Grader {
	return &Grader{
		logger: nil,
		db:     nil,
		cfg:    cfg,
	}
}

func (g *Grader) Setup() error {
	if err := g.SetupLogger(); err != nil {
		return err
	}
	if err := g.ConnectDB(); err != nil {
		return err
	}

	schema, err := NewSchemaManager(g.logger, g.db, g.cfg.DBConfig.DriverName(), g.cfg.Paths.SchemaFile)
	if err != nil {
		return err
	}
	g.schema = schema
	g.runner = NewRunner(g.logger, g.db, g.cfg.QueryTimeout())

	return nil
}

func (g *Grader) SetupLogger() error {
	logger, err := g.cfg.LoggerConfig.Build()
	if err != nil {
		return err
	}

	g.logger = logger

	return nil
}

func (g *Grader) ConnectDB() error {
	db, err := connectDB(g.cfg.DBConfig.DriverName(), g.cfg.DBConfig.ConnectionString())
	if err != nil {
		return err
	}

	g.db = db

	g.logger.Info(
		"database connected",
		zap.String("driver", g.cfg.DBConfig.DriverName()),
	)

	return nil
}

func (g *Grader) Close() {
	if g.db != nil {
		_ = g.db.Close()
	}
	if g.logger != nil {
		_ = g.logger.Sync()
	}
}

// Run executes the batch. Errors returned here are fatal for the whole
// run: a broken model solution or an unusable schema is an instructor
// problem, not a student one. Per-student failures never surface here.
func (g *Grader) Run(ctx context.Context) error {
	if err := g.loadModelSolution(); err != nil {
		return err
	}
	if err := g.buildGroundTruth(ctx); err != nil {
		return err
	}

	writer, err := NewReportWriter(g.logger, g.cfg.Paths.ResultsFile, g.cfg.Paths.LogsDir, g.model.Indices())
	if err != nil {
		return err
	}
	defer func() { _ = writer.Close() }()

	files, err := listStudentFiles(g.cfg.Paths.QueriesDir)
	if err != nil {
		return err
	}

	processed := 0
	for _, file := range files {
		select {
		case <-ctx.Done():
			g.logger.Warn(
				"run cancelled",
				zap.Int("processed_students", processed),
				zap.Int("remaining_students", len(files)-processed),
			)
			return ctx.Err()
		default:
		}

		report := g.evaluateStudent(ctx, file)
		// Cancellation mid-student surfaces as bogus failures inside the
		// report (reset and queries die with the context). Only fully
		// completed students may reach the results table.
		if err := ctx.Err(); err != nil {
			g.logger.Warn(
				"run cancelled during student evaluation, result discarded",
				zap.String("student_id", report.StudentID),
				zap.Int("processed_students", processed),
			)
			return err
		}
		if err := writer.Append(report); err != nil {
			return err
		}
		if err := writer.WriteLog(report); err != nil {
			return err
		}
		processed++
	}

	g.logger.Info(
		"evaluation complete",
		zap.Int("student_count", processed),
		zap.String("results_path", g.cfg.Paths.ResultsFile),
	)

	return nil
}

func (g *Grader) loadModelSolution() error {
	data, err := os.ReadFile(g.cfg.Paths.ModelFile)
	if err != nil {
		return fmt.Errorf("read model solution: %w", err)
	}

	model, err := ParseQuerySet(string(data), g.cfg.ExpectedQuestions)
	if err != nil {
		return fmt.Errorf("parse model solution: %w", err)
	}
	if len(model) != g.cfg.ExpectedQuestions {
		return fmt.Errorf(
			"model solution has %d questions, configuration expects %d",
			len(model), g.cfg.ExpectedQuestions,
		)
	}

	g.model = model

	return nil
}

// buildGroundTruth resets the schema and runs every model question once.
// Any model execution error means the instructor's own solution is broken,
// which aborts the run before any student is touched.
func (g *Grader) buildGroundTruth(ctx context.Context) error {
	if err := g.schema.Reset(ctx); err != nil {
		return fmt.Errorf("ground truth schema reset: %w", err)
	}

	groundTruth := make(map[int]*ResultSet, len(g.model))
	for _, q := range g.model {
		outcome := g.runner.Execute(ctx, q.SQL)
		if outcome.Failed() {
			return fmt.Errorf("model solution question %d failed: %s", q.Index, outcome.Err)
		}
		groundTruth[q.Index] = outcome.Result
	}

	g.groundTruth = groundTruth

	g.logger.Info("ground truth built", zap.Int("question_count", len(groundTruth)))

	return nil
}

// evaluateStudent owns one student's whole lifecycle: reset, parse, run
// each question, compare. It always returns a complete report; the only
// shared state it touches is the schema, and only through the manager.
func (g *Grader) evaluateStudent(ctx context.Context, path string) *StudentReport {
	studentID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	report := &StudentReport{StudentID: studentID, Total: len(g.model)}

	g.logger.Info("evaluating student", zap.String("student_id", studentID))

	if err := g.schema.Reset(ctx); err != nil {
		g.logger.Error(
			"schema reset failed",
			zap.String("student_id", studentID),
			zap.String("error_message", err.Error()),
		)
		return g.failAll(report, err.Error())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return g.failAll(report, (&InfraError{Op: "read submission", Err: err}).Error())
	}

	queries, err := ParseQuerySet(string(data), g.cfg.ExpectedQuestions)
	if err != nil {
		g.logger.Warn(
			"submission format error",
			zap.String("student_id", studentID),
			zap.String("error_message", err.Error()),
		)
		return g.failAll(report, err.Error())
	}

	for _, q := range g.model {
		expected := g.groundTruth[q.Index]

		statement, ok := queries.Lookup(q.Index)
		if !ok {
			report.Records = append(report.Records, QuestionRecord{
				QuestionVerdict: QuestionVerdict{Index: q.Index, Status: Fail, Diff: "missing answer"},
				Expected:        expected,
			})
			continue
		}

		outcome := g.runner.Execute(ctx, statement)
		verdict := Compare(q.Index, expected, outcome)
		if verdict.Status == Pass {
			report.Passed++
		}
		report.Records = append(report.Records, QuestionRecord{
			QuestionVerdict: verdict,
			Expected:        expected,
			Actual:          outcome.Result,
		})
	}

	for _, index := range queries.Indices() {
		if _, ok := g.groundTruth[index]; !ok {
			g.logger.Warn(
				"submission has a question not present in the model solution",
				zap.String("student_id", studentID),
				zap.Int("question_index", index),
			)
		}
	}

	return report
}

// failAll marks every question FAIL with the same note. Used when the
// student cannot be evaluated at all (format error, reset failure).
func (g *Grader) failAll(report *StudentReport, note string) *StudentReport {
	report.Records = report.Records[:0]
	report.Passed = 0
	for _, q := range g.model {
		report.Records = append(report.Records, QuestionRecord{
			QuestionVerdict: QuestionVerdict{Index: q.Index, Status: Fail, Diff: note},
			Expected:        g.groundTruth[q.Index],
		})
	}
	return report
}

func listStudentFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read queries directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".sql") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)

	return files, nil
}
