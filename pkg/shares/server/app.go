package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"
	xrate "golang.org/x/time/rate"
	"google.golang.org/grpc"

	"github.com/dibs-shares/shares-server/pkg/app"
	pg "github.com/dibs-shares/shares-server/pkg/database/postgres"
	etcd_lock "github.com/dibs-shares/shares-server/pkg/lock/etcd"
	"github.com/dibs-shares/shares-server/pkg/metrics"
	"github.com/dibs-shares/shares-server/pkg/rate"
	"github.com/dibs-shares/shares-server/pkg/retry"
	"github.com/dibs-shares/shares-server/pkg/retry/backoff"
	"github.com/dibs-shares/shares-server/pkg/shares/common"
	"github.com/dibs-shares/shares-server/pkg/shares/data"
	"github.com/dibs-shares/shares-server/pkg/shares/market"
	"github.com/dibs-shares/shares-server/pkg/shares/registry"
	"github.com/dibs-shares/shares-server/pkg/shares/reserve"
	"github.com/dibs-shares/shares-server/pkg/shares/server/web"
)

type appConfig struct {
	UseMemoryStore bool `mapstructure:"use_memory_store"`

	DatabaseHost               string `mapstructure:"database_host"`
	DatabasePort               int    `mapstructure:"database_port"`
	DatabaseName               string `mapstructure:"database_name"`
	DatabaseUser               string `mapstructure:"database_user"`
	DatabasePassword           string `mapstructure:"database_password"`
	DatabaseUseAwsIam          bool   `mapstructure:"database_use_aws_iam"`
	DatabaseMaxOpenConnections int    `mapstructure:"database_max_open_connections"`
	DatabaseMaxIdleConnections int    `mapstructure:"database_max_idle_connections"`

	// EtcdEndpoints enables cross-process market creation locking when set
	EtcdEndpoints      []string `mapstructure:"etcd_endpoints"`
	EtcdLockPrefix     string   `mapstructure:"etcd_lock_prefix"`
	EtcdLockTTLSeconds int      `mapstructure:"etcd_lock_ttl_seconds"`

	// RateLimitPerSecond is the per client IP request rate. Zero disables it.
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`

	// DevFunding tops up reserve balances at startup. Not for production use.
	DevFunding []devFundingConfig `mapstructure:"dev_funding"`
}

type devFundingConfig struct {
	Account string `mapstructure:"account"`
	Mint    string `mapstructure:"mint"`
	Quarks  uint64 `mapstructure:"quarks"`
}

var defaultAppConfig = appConfig{
	UseMemoryStore:     true,
	DatabasePort:       5432,
	EtcdLockPrefix:     "/shares/locks",
	EtcdLockTTLSeconds: 10,
	RateLimitPerSecond: 20,
}

type sharesApp struct {
	log *logrus.Entry

	registry *registry.Registry
	web      *web.Server

	etcdClient  *v3.Client
	lockManager *etcd_lock.LockManager

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// NewApp returns the shares marketplace application
func NewApp() app.App {
	return &sharesApp{
		log:        logrus.StandardLogger().WithField("type", "shares/server"),
		shutdownCh: make(chan struct{}),
	}
}

func (a *sharesApp) Init(config app.Config, metricsProvider *newrelic.Application) error {
	ctx := metrics.WithNewRelicApp(context.Background(), metricsProvider)

	conf, err := decodeConfig(config)
	if err != nil {
		return err
	}

	provider, err := newDataProvider(conf)
	if err != nil {
		return err
	}

	ledger := reserve.NewLedger(provider)
	if err := a.applyDevFunding(ctx, ledger, conf.DevFunding); err != nil {
		return err
	}

	var opts []registry.Option
	if len(conf.EtcdEndpoints) > 0 {
		a.etcdClient, err = v3.New(v3.Config{
			Endpoints:   conf.EtcdEndpoints,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return errors.Wrap(err, "error creating etcd client")
		}

		a.lockManager = etcd_lock.NewLockManager(a.etcdClient, conf.EtcdLockPrefix, time.Duration(conf.EtcdLockTTLSeconds)*time.Second)
		creationLock, err := a.lockManager.Create(ctx, "market-creation")
		if err != nil {
			return errors.Wrap(err, "error creating market creation lock")
		}
		opts = append(opts, registry.WithCreationLock(creationLock))
	}

	a.registry, err = registry.New(
		ctx,
		provider,
		ledger,
		market.NewAuthorityAuthorizer(),
		registry.WithEnvConfigs(),
		opts...,
	)
	if err != nil {
		return errors.Wrap(err, "error creating registry")
	}

	var count int
	_, err = retry.Retry(
		func() error {
			count, err = a.registry.Load(ctx)
			return err
		},
		retry.Limit(5),
		retry.NonRetriableErrors(context.Canceled, context.DeadlineExceeded),
		retry.Backoff(backoff.BinaryExponential(250*time.Millisecond), 5*time.Second),
	)
	if err != nil {
		return errors.Wrap(err, "error loading markets")
	}
	a.log.WithField("markets", count).Info("registry ready")

	var limiter rate.Limiter = &rate.NoLimiter{}
	if conf.RateLimitPerSecond > 0 {
		limiter = rate.NewLocalRateLimiter(xrate.Limit(conf.RateLimitPerSecond))
	}
	a.web = web.NewServer(a.registry, limiter, metricsProvider)

	return nil
}

func (a *sharesApp) HTTPHandler() http.Handler {
	return a.web.Handler()
}

func (a *sharesApp) RegisterWithGRPC(_ *grpc.Server) {
}

func (a *sharesApp) ShutdownChan() <-chan struct{} {
	return a.shutdownCh
}

func (a *sharesApp) Stop() {
	a.shutdownOnce.Do(func() {
		if a.lockManager != nil {
			if err := a.lockManager.Close(); err != nil {
				a.log.WithError(err).Warn("failure closing lock manager")
			}
		}
		if a.etcdClient != nil {
			if err := a.etcdClient.Close(); err != nil {
				a.log.WithError(err).Warn("failure closing etcd client")
			}
		}
		close(a.shutdownCh)
	})
}

func (a *sharesApp) applyDevFunding(ctx context.Context, ledger *reserve.Ledger, entries []devFundingConfig) error {
	for _, entry := range entries {
		log := a.log.WithFields(logrus.Fields{
			"method":  "applyDevFunding",
			"account": entry.Account,
			"mint":    entry.Mint,
		})

		if _, err := common.NewAccountFromPublicKeyString(entry.Account); err != nil {
			return errors.Wrapf(err, "invalid dev funding account %q", entry.Account)
		}
		if _, err := common.NewAccountFromPublicKeyString(entry.Mint); err != nil {
			return errors.Wrapf(err, "invalid dev funding mint %q", entry.Mint)
		}

		credited, err := ledger.TopUp(ctx, entry.Mint, entry.Account, entry.Quarks)
		if err != nil {
			return errors.Wrap(err, "error applying dev funding")
		}
		log.WithField("credited", credited).Warn("applied dev funding")
	}
	return nil
}

func decodeConfig(config app.Config) (*appConfig, error) {
	conf := defaultAppConfig
	if err := mapstructure.Decode(config, &conf); err != nil {
		return nil, errors.Wrap(err, "invalid app config")
	}
	return &conf, nil
}

func newDataProvider(conf *appConfig) (data.Provider, error) {
	if conf.UseMemoryStore {
		return data.NewTestDatabaseProvider(), nil
	}

	return data.NewDatabaseProvider(&pg.Config{
		User:               conf.DatabaseUser,
		Password:           conf.DatabasePassword,
		Host:               conf.DatabaseHost,
		Port:               conf.DatabasePort,
		DbName:             conf.DatabaseName,
		MaxOpenConnections: conf.DatabaseMaxOpenConnections,
		MaxIdleConnections: conf.DatabaseMaxIdleConnections,
		UseAwsIam:          conf.DatabaseUseAwsIam,
	})
}
