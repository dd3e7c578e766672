package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dbslab/labgrader/config"
	"github.com/dbslab/labgrader/grader"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "labgrader",
	Short: "Grades student SQL submissions against a model solution",
	Long: `Labgrader executes every student's marker-delimited SQL queries on a
freshly reset schema, compares the result sets against the model solution
and writes a cumulative results table plus one log file per student.`,
}

var gradeCmd = &cobra.Command{
	Use:   "grade",
	Short: "Run the evaluation batch over all submitted files",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		cfg := config.GraderConfig{}
		var err error
		if configFile != "" {
			err = cfg.LoadFromFile(configFile)
		} else {
			err = cfg.LoadDefault()
		}
		if err != nil {
			return err
		}

		g := grader.New(cfg)
		if err := g.Setup(); err != nil {
			return err
		}
		defer g.Close()

		return g.Run(setupSignalContext())
	},
}

var checkQuestions int

var checkFormatCmd = &cobra.Command{
	Use:   "checkformat <file>",
	Short: "Lint a submission file before handing it in",
	Long: `Checks that the filename is a valid student identifier and that the
file contains every expected --N-- marker with a query after it.
Exits non-zero when the file would be rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		ok := true
		if !grader.ValidStudentFilename(filepath.Base(path)) {
			fmt.Printf("Filename: FAIL %q is not a valid student ID filename (e.g. 2023A7PS0043H.sql)\n", filepath.Base(path))
			ok = false
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		findings := grader.CheckFormat(string(data), checkQuestions)
		for _, f := range findings {
			if f.Index > 0 {
				fmt.Printf("Query %d: %s %s\n", f.Index, f.Level, f.Message)
			} else {
				fmt.Printf("File: %s %s\n", f.Level, f.Message)
			}
		}
		if !grader.FormatOK(findings) {
			ok = false
		}

		if !ok {
			return fmt.Errorf("formatting errors found")
		}
		fmt.Println("All formatting checks passed.")
		return nil
	},
}

func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Print("\n")
		cancel()
	}()

	return ctx
}

func init() {
	gradeCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file (default config.json)")
	checkFormatCmd.Flags().IntVarP(&checkQuestions, "questions", "q", 1, "Expected number of questions")

	rootCmd.AddCommand(gradeCmd)
	rootCmd.AddCommand(checkFormatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
