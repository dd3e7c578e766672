package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-ozzo/ozzo-validation/v3"
	"github.com/go-ozzo/ozzo-validation/v3/is"
	"go.uber.org/zap"
)

const (
	DriverOracle   = "oracle"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type DBConfig struct {
	Driver   string `json:"driver"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	Service  string `json:"service"`
	Path     string `json:"path"`
}

// DriverName maps the configured engine to its database/sql driver.
func (c *DBConfig) DriverName() string {
	switch c.Driver {
	case DriverOracle:
		return "godror"
	case DriverPostgres:
		return "postgres"
	case DriverSQLite:
		return "sqlite3"
	default:
		return c.Driver
	}
}

func (c *DBConfig) ConnectionString() string {
	switch c.Driver {
	case DriverPostgres:
		return fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.Username, c.Password, c.Service,
		)
	case DriverSQLite:
		return c.Path
	default:
		return fmt.Sprintf("%s/%s@%s:%s/%s", c.Username, c.Password, c.Host, c.Port, c.Service)
	}
}

func (c *DBConfig) Validate() error {
	if err := validation.ValidateStruct(
		c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverOracle, DriverPostgres, DriverSQLite)),
	); err != nil {
		return err
	}
	if c.Driver == DriverSQLite {
		return validation.ValidateStruct(
			c,
			validation.Field(&c.Path, validation.Required),
		)
	}
	return validation.ValidateStruct(
		c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
		validation.Field(&c.Host, validation.Required, is.Host),
		validation.Field(&c.Port, validation.Required, is.Port),
		validation.Field(&c.Service, validation.Required),
	)
}

// applyEnv lets DB credentials come from the environment instead of the
// config file (a .env file is loaded by main before config resolution).
func (c *DBConfig) applyEnv() {
	if v := os.Getenv("GRADER_DB_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("GRADER_DB_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("GRADER_DB_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("GRADER_DB_PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("GRADER_DB_SERVICE"); v != "" {
		c.Service = v
	}
}

type PathsConfig struct {
	SchemaFile  string `json:"schema_file"`
	ModelFile   string `json:"model_file"`
	QueriesDir  string `json:"queries_dir"`
	LogsDir     string `json:"logs_dir"`
	ResultsFile string `json:"results_file"`
}

func (c *PathsConfig) Validate() error {
	return validation.ValidateStruct(
		c,
		validation.Field(&c.SchemaFile, validation.Required),
		validation.Field(&c.ModelFile, validation.Required),
		validation.Field(&c.QueriesDir, validation.Required),
		validation.Field(&c.LogsDir, validation.Required),
		validation.Field(&c.ResultsFile, validation.Required),
	)
}

const (
	minQueryTimeoutMS    = 100
	minExpectedQuestions = 1
)

type GraderConfig struct {
	LoggerConfig zap.Config `json:"logger"`

	DBConfig DBConfig    `json:"db"`
	Paths    PathsConfig `json:"paths"`

	ExpectedQuestions int `json:"expected_questions"`
	QueryTimeoutMS    int `json:"query_timeout_ms"`
}

func (c *GraderConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMS) * time.Millisecond
}

func (c *GraderConfig) Validate() error {
	if err := c.DBConfig.Validate(); err != nil {
		return err
	}
	if err := c.Paths.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(
		c,
		validation.Field(&c.ExpectedQuestions, validation.Required, validation.Min(minExpectedQuestions)),
		validation.Field(&c.QueryTimeoutMS, validation.Required, validation.Min(minQueryTimeoutMS)),
	)
}

func (c *GraderConfig) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch ext := filepath.Ext(path); ext {
	case ".json":
		if err := c.loadFromJSON(data); err != nil {
			return err
		}
		c.DBConfig.applyEnv()
		return c.Validate()
	default:
		return fmt.Errorf("unknown configuration file extension: %s", ext)
	}
}

func (c *GraderConfig) loadFromJSON(data []byte) error {
	return json.Unmarshal(data, c)
}

const defaultConfigFile = "config.json"

func (c *GraderConfig) LoadDefault() error {
	return c.LoadFromFile(defaultConfigFile)
}
