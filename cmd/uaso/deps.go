package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/go-core/log"

	uc "github.com/linnemanlabs/uaso/internal/cfg"
	"github.com/linnemanlabs/uaso/internal/llm/anthropic"
	"github.com/linnemanlabs/uaso/internal/llm/bedrock"
	"github.com/linnemanlabs/uaso/internal/notify/multi"
	"github.com/linnemanlabs/uaso/internal/notify/slack"
	"github.com/linnemanlabs/uaso/internal/notify/sns"
	"github.com/linnemanlabs/uaso/internal/postgres"
	"github.com/linnemanlabs/uaso/internal/triage"
	"github.com/linnemanlabs/uaso/internal/triage/dynamostore"
	"github.com/linnemanlabs/uaso/internal/triage/memstore"
	"github.com/linnemanlabs/uaso/internal/triage/pgstore"
	"github.com/linnemanlabs/uaso/internal/triage/sqlitestore"
)

// slowQuery is the threshold above which successful postgres queries are logged.
const slowQuery = 250 * time.Millisecond

// deps are the long-lived collaborators shared by batch and server mode.
type deps struct {
	svc     *triage.Service
	closers []io.Closer
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i].Close()
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// buildDeps creates every client once and injects it into the service.
// reg may be nil, in which case no metrics are registered.
func buildDeps(ctx context.Context, c *uc.Config, L log.Logger, reg prometheus.Registerer) (*deps, error) {
	d := &deps{}

	var awsCfg aws.Config
	if c.NeedsAWS() {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(c.AWSRegion),
			// no retries anywhere in the pipeline; a failed call is final
			awsconfig.WithRetryMaxAttempts(1),
		)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
	}

	invoker, err := newInvoker(c, awsCfg)
	if err != nil {
		return nil, err
	}
	L.Info(ctx, "initialized inference invoker", "invoker", c.Invoker, "model_id", c.ModelID)

	var metrics *triage.Metrics
	var hooks triage.EngineHooks
	var observer postgres.QueryObserver
	if reg != nil {
		metrics = triage.NewMetrics(reg)
		hooks = metrics.Hooks()

		// per-query DB duration histogram for the postgres store
		dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uaso_db_query_duration_seconds",
			Help:    "Duration of individual database queries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"})
		reg.MustRegister(dbQueryDuration)
		observer = postgres.QueryObserverFunc(func(_ context.Context, operation, outcome string, dur time.Duration) {
			dbQueryDuration.WithLabelValues(operation, outcome).Observe(dur.Seconds())
		})
	}

	store, err := newStore(ctx, c, awsCfg, L, observer, d)
	if err != nil {
		d.Close()
		return nil, err
	}
	L.Info(ctx, "initialized record store", "store", c.Store)

	notifier := newNotifier(c, awsCfg, L)
	if notifier.Len() == 0 {
		L.Warn(ctx, "no notification transport configured; notifications are dropped")
	}

	engine := triage.NewEngine(invoker, c.ModelID, L, hooks)
	d.svc = triage.NewService(store, engine, L, metrics, notifier, triage.Bookkeeping{
		ProcessedBy: c.ProcessedBy,
		Environment: c.Environment,
	})
	return d, nil
}

func newInvoker(c *uc.Config, awsCfg aws.Config) (triage.Invoker, error) {
	switch c.Invoker {
	case uc.InvokerBedrock:
		return bedrock.New(bedrockruntime.NewFromConfig(awsCfg)), nil
	case uc.InvokerAnthropic:
		return anthropic.New(anthropic.Options{
			APIKey: c.AnthropicAPIKey,
			Model:  c.AnthropicModel,
		}), nil
	default:
		return nil, fmt.Errorf("unknown invoker %q", c.Invoker)
	}
}

func newStore(ctx context.Context, c *uc.Config, awsCfg aws.Config, L log.Logger, observer postgres.QueryObserver, d *deps) (triage.Store, error) {
	switch c.Store {
	case uc.StoreMemory:
		return memstore.New(), nil
	case uc.StorePostgres:
		pool, err := postgres.NewPool(ctx, c.DatabaseURL, postgres.Options{
			Logger:    L,
			Observer:  observer,
			SlowQuery: slowQuery,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
		d.closers = append(d.closers, closerFunc(func() error { pool.Close(); return nil }))
		s, err := pgstore.New(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("pgstore init: %w", err)
		}
		return s, nil
	case uc.StoreDynamoDB:
		return dynamostore.New(dynamodb.NewFromConfig(awsCfg), c.DynamoDBTable), nil
	case uc.StoreSQLite:
		s, err := sqlitestore.Open(ctx, c.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		d.closers = append(d.closers, s)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store %q", c.Store)
	}
}

func newNotifier(c *uc.Config, awsCfg aws.Config, L log.Logger) *multi.Notifier {
	var ns []triage.Notifier
	if c.SNSTopicARN != "" {
		ns = append(ns, sns.New(awssns.NewFromConfig(awsCfg), c.SNSTopicARN, L))
	}
	if c.SlackWebhookURL != "" {
		ns = append(ns, slack.New(c.SlackWebhookURL, L))
	}
	return multi.New(ns...)
}
