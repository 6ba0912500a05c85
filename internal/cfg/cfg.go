// Package cfg holds the application flags for uaso. Ambient concerns (log,
// http, ops, tracing, profiling) register their own flags from go-core.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/linnemanlabs/uaso/internal/classify"
)

// Invoker backends.
const (
	InvokerBedrock   = "bedrock"
	InvokerAnthropic = "anthropic"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreDynamoDB = "dynamodb"
	StoreSQLite   = "sqlite"
)

var (
	invokers = []string{InvokerBedrock, InvokerAnthropic}
	stores   = []string{StoreMemory, StorePostgres, StoreDynamoDB, StoreSQLite}
)

// Config holds the application-specific settings. It satisfies the same
// RegisterFlags/Validate shape as the go-core config types.
type Config struct {
	ModelID         string
	Invoker         string
	AWSRegion       string
	AnthropicAPIKey string
	AnthropicModel  string

	Store         string
	DatabaseURL   string
	DynamoDBTable string
	SQLitePath    string

	SNSTopicARN     string
	SlackWebhookURL string

	Environment string
	ProcessedBy string

	AlertFile string

	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ModelID, "model-id", classify.DefaultModelID, "inference model identifier; selects the request shape")
	fs.StringVar(&c.Invoker, "invoker", InvokerBedrock, "inference backend ("+strings.Join(invokers, ", ")+")")
	fs.StringVar(&c.AWSRegion, "aws-region", "us-east-2", "AWS region for bedrock, dynamodb and sns clients")
	fs.StringVar(&c.AnthropicAPIKey, "anthropic-api-key", "", "API key for the Anthropic API (invoker=anthropic)")
	fs.StringVar(&c.AnthropicModel, "anthropic-model", "claude-3-5-haiku-latest", "native model name for the Anthropic API")

	fs.StringVar(&c.Store, "store", StoreMemory, "record store ("+strings.Join(stores, ", ")+")")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (store=postgres)")
	fs.StringVar(&c.DynamoDBTable, "dynamodb-table", "", "DynamoDB table name (store=dynamodb)")
	fs.StringVar(&c.SQLitePath, "sqlite-path", "uaso.db", "SQLite database file (store=sqlite)")

	fs.StringVar(&c.SNSTopicARN, "sns-topic-arn", "", "SNS topic ARN for notifications (empty = disabled)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for notifications (empty = disabled)")

	fs.StringVar(&c.Environment, "environment", "Hackathon", "environment name stamped on every record")
	fs.StringVar(&c.ProcessedBy, "processed-by", "UASO_Lambda", "processor name stamped on every record")

	fs.StringVar(&c.AlertFile, "alert-file", "", "process newline-delimited alerts from this file and exit")

	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on the alert API (server mode)")
}

// BatchMode reports whether an alert file was given.
func (c *Config) BatchMode() bool { return c.AlertFile != "" }

// Validate checks the settings shared by batch and server mode.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.ModelID) == "" {
		errs = append(errs, errors.New("MODEL_ID is required"))
	}

	switch c.Invoker {
	case InvokerBedrock:
	case InvokerAnthropic:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for invoker=anthropic"))
		}
		if c.AnthropicModel == "" {
			errs = append(errs, errors.New("ANTHROPIC_MODEL is required for invoker=anthropic"))
		}
		if family, _ := classify.FamilyOf(c.ModelID); family != "claude-3" {
			errs = append(errs, fmt.Errorf("MODEL_ID %q must be a claude-3 identifier for invoker=anthropic", c.ModelID))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid INVOKER %q (must be one of %s)", c.Invoker, strings.Join(invokers, ", ")))
	}

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for store=postgres"))
		}
	case StoreDynamoDB:
		if c.DynamoDBTable == "" {
			errs = append(errs, errors.New("DYNAMODB_TABLE is required for store=dynamodb"))
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for store=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid STORE %q (must be one of %s)", c.Store, strings.Join(stores, ", ")))
	}

	if c.NeedsAWS() && c.AWSRegion == "" {
		errs = append(errs, errors.New("AWS_REGION is required for bedrock, dynamodb and sns"))
	}

	return errors.Join(errs...)
}

// ValidateServer checks the settings only server mode uses.
func (c *Config) ValidateServer() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.APIToken == "" {
		errs = append(errs, errors.New("API_TOKEN is required in server mode"))
	}

	return errors.Join(errs...)
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c *Config) NeedsAWS() bool {
	return c.Invoker == InvokerBedrock || c.Store == StoreDynamoDB || c.SNSTopicARN != ""
}
