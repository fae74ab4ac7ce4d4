package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"corebank/app"
	"corebank/billing"
	"corebank/closure"
	"corebank/config"
	"corebank/logger"
	"corebank/notify"
	"corebank/runtime"
	"corebank/sched"
	"corebank/shared"
	"corebank/store"
	"corebank/transfer"
)

const (
	accountRegionName  = "accounts"
	employeeRegionName = "employees"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "corebank",
	Short: "Event-sourced core banking engine",
	Long: `corebank runs a sharded, event-sourced banking engine: accounts and
employees live as journaled aggregates behind per-entity mailboxes, with
internal and domestic transfer workflows, rule-driven automated transfers,
and monthly billing cycles.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// system is the wired node: journal, shard regions, transfer machinery,
// billing, closure, and the egress fabric.
type system struct {
	cfg *config.Config
	log *zap.Logger

	journal   store.Journal
	registry  *runtime.Registry
	accounts  *runtime.Region
	employees *runtime.Region

	broadcast   *notify.Broadcast
	scheduler   *sched.Scheduler
	worker      *transfer.Worker
	coordinator *transfer.Coordinator
	finalizer   *closure.Finalizer
	fanout      *billing.Fanout
	statements  app.StatementStore

	closers []func()
}

// registryTeller routes messages to a region resolved through the service
// registry, so mutually recursive components can be wired before the regions
// exist.
type registryTeller struct {
	reg  *runtime.Registry
	name string
}

func (t registryTeller) Tell(entityID string, msg any) {
	region, err := runtime.Lookup[*runtime.Region](t.reg, t.name)
	if err != nil {
		return
	}
	region.Tell(entityID, msg)
}

func (t registryTeller) Remember(entityID string) error {
	region, err := runtime.Lookup[*runtime.Region](t.reg, t.name)
	if err != nil {
		return err
	}
	return region.Remember(entityID)
}

func (t registryTeller) Forget(entityID string) error {
	region, err := runtime.Lookup[*runtime.Region](t.reg, t.name)
	if err != nil {
		return err
	}
	return region.Forget(entityID)
}

func buildSystem() (*system, error) {
	cfg, err := config.Parse()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		return nil, err
	}

	s := &system{cfg: cfg, log: log, registry: runtime.NewRegistry()}

	if cfg.JournalPath != "" {
		bolt, err := store.OpenBolt(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		s.journal = bolt
		s.closers = append(s.closers, func() { bolt.Close() })
	} else {
		s.journal = store.NewMemoryJournal()
	}

	var publisher *notify.AMQPPublisher
	if cfg.AMQPURI != "" {
		publisher, err = notify.DialAMQP(cfg.AMQPURI, cfg.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("dial amqp: %w", err)
		}
		s.closers = append(s.closers, func() { publisher.Close() })
	}
	s.broadcast = notify.NewBroadcast(log, publisher)

	var outbox notify.Outbox = notify.LogOutbox{Log: log.Named("email")}
	if publisher != nil {
		outbox = notify.AMQPOutbox{Publisher: publisher, Log: log.Named("email")}
	}
	emailer := notify.NewEmailer(outbox)

	accountsRoute := registryTeller{reg: s.registry, name: accountRegionName}
	employeesRoute := registryTeller{reg: s.registry, name: employeeRegionName}

	s.scheduler = sched.New(accountsRoute, log)

	breaker := transfer.NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown,
		func(from, to transfer.BreakerState) {
			s.broadcast.PublishHealth("domestic-gateway", string(from), string(to))
		})
	gateway := transfer.NewHTTPGateway(cfg.GatewayURL, log)
	s.worker = transfer.NewWorker(gateway, breaker, accountsRoute, log)
	s.coordinator = transfer.NewCoordinator(accountsRoute, log)

	s.finalizer = closure.NewFinalizer(s.journal, accountsRoute, s.scheduler, log)

	var readModel billing.ReadModel
	if cfg.DatabaseURI != "" {
		pool, err := billing.OpenPool(cfg.DatabaseURI)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		readModel = billing.NewPGReadModel(pool)
		s.statements = billing.NewPGStatementStore(pool)
	} else {
		memRM := billing.NewMemoryReadModel()
		billing.ProjectFromBus(s.broadcast, memRM)
		readModel = memRM
		s.statements = billing.NewMemoryStatementStore()
	}
	throttle := billing.Throttle{Burst: cfg.ThrottleBurst, Count: cfg.ThrottleCount, Per: cfg.ThrottlePer}
	s.fanout = billing.NewFanout(readModel, accountsRoute, throttle, log)

	env := app.Env{
		Journal:       s.journal,
		Log:           log,
		Accounts:      accountsRoute,
		Employees:     employeesRoute,
		Internal:      s.coordinator,
		Domestic:      s.worker,
		Scheduler:     s.scheduler,
		Closure:       s.finalizer,
		Bus:           s.broadcast,
		Notifier:      emailer,
		Statements:    s.statements,
		SnapshotEvery: cfg.SnapshotEvery,
	}

	index := runtime.NewShardIndex(s.journal)
	s.accounts = runtime.NewRegion(runtime.Config{
		Name:           accountRegionName,
		Shards:         cfg.Shards,
		PassivateAfter: cfg.PassivateAfter,
	}, app.NewAccountFactory(env), index, log)
	s.employees = runtime.NewRegion(runtime.Config{
		Name:           employeeRegionName,
		Shards:         cfg.Shards,
		PassivateAfter: cfg.PassivateAfter,
	}, app.NewEmployeeFactory(env), index, log)

	s.registry.Put(accountRegionName, s.accounts)
	s.registry.Put(employeeRegionName, s.employees)

	return s, nil
}

func (s *system) shutdown() {
	s.worker.Stop()
	s.coordinator.Stop()
	s.finalizer.Stop()
	s.scheduler.Stop()
	s.employees.Stop()
	s.accounts.Stop()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.log.Sync() //nolint:errcheck
}

func newMeta(entityID string, orgID string) shared.CommandMeta {
	return shared.NewCommandMeta(entityID, shared.OrgID(orgID), "cli")
}
