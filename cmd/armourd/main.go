package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/aiarmour/armour/internal/agent"
	"github.com/aiarmour/armour/internal/api"
	"github.com/aiarmour/armour/internal/approval"
	"github.com/aiarmour/armour/internal/audit"
	"github.com/aiarmour/armour/internal/config"
	"github.com/aiarmour/armour/internal/dispatch"
	"github.com/aiarmour/armour/internal/events"
	"github.com/aiarmour/armour/internal/factcheck"
	"github.com/aiarmour/armour/internal/metrics"
	"github.com/aiarmour/armour/internal/persistence"
	"github.com/aiarmour/armour/internal/pipeline"
	"github.com/aiarmour/armour/internal/schedule"
	"github.com/aiarmour/armour/internal/task"
	"github.com/aiarmour/armour/internal/verify"
)

var seedDemo = flag.Bool("seed-demo", false, "seed demo business records into the fact store")

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Provider API keys come from the environment; a .env file is optional.
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("ARMOUR_DEBUG") != "" {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := persistence.NewSQLiteStore(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	bus := events.NewBus()
	defer bus.Close()

	proj := metrics.New()
	go proj.Run(bus.SubscribeAll(256))

	agents, reviewer, err := buildCapabilities(cfg, log)
	if err != nil {
		return err
	}

	rules := schedule.DefaultRules()
	if len(cfg.Schedules) > 0 {
		rules = scheduleRules(cfg.Schedules)
	}
	sched, err := schedule.New(rules)
	if err != nil {
		return fmt.Errorf("building schedule: %w", err)
	}

	if *seedDemo {
		if err := seedDemoFacts(ctx, store); err != nil {
			return fmt.Errorf("seeding demo facts: %w", err)
		}
		log.Info("demo business records seeded")
	}

	adapters := dispatch.Channels(cfg.Webhooks, 15*time.Second, logrus.NewEntry(log))
	dispatcher := dispatch.New(adapters, store, 3, logrus.NewEntry(log))

	gate := approval.NewGate(approval.Policy{
		MaxAutoAmount:    cfg.Approval.MaxAutoAmount,
		ManualPriorities: []task.Priority{task.PriorityHot},
		SLA:              time.Duration(cfg.Approval.SLAMinutes) * time.Minute,
	})

	runner := pipeline.New(pipelineConfig(cfg.Pipeline), pipeline.Deps{
		Store:      store,
		Agents:     agents,
		Verifier:   verify.New(reviewer, log),
		Checker:    factcheck.New(store, log),
		Gate:       gate,
		Dispatcher: dispatcher,
		Scheduler:  sched,
		Audit:      audit.New(store, bus, logrus.NewEntry(log)),
		Bus:        bus,
		Log:        log,
	})

	server := api.NewServer(runner, store, proj, log)
	httpSrv := &http.Server{Addr: cfg.Listen, Handler: server.Routes()}

	errChan := make(chan error, 2)
	go func() {
		log.WithField("addr", cfg.Listen).Info("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	go func() {
		log.Info("pipeline started")
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		stop()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown error")
		}
	}

	log.Info("shutdown complete")
	return nil
}

// buildCapabilities binds each business role to its proposing capability and
// builds the independent reviewer. The reviewer must come from a different
// provider than the proposers where configured that way; nothing here
// enforces it beyond the config.
func buildCapabilities(cfg *config.Config, log *logrus.Logger) (map[task.Role]agent.Capability, agent.Reviewer, error) {
	completers := map[string]agent.Completer{}
	completerFor := func(name string, override config.AgentConfig) (agent.Completer, error) {
		p, ok := cfg.Providers[override.Provider]
		if !ok {
			return nil, fmt.Errorf("agent %q references unknown provider %q", name, override.Provider)
		}
		model := p.Model
		if override.Model != "" {
			model = override.Model
		}
		key := override.Provider + "/" + model
		if c, ok := completers[key]; ok {
			return c, nil
		}
		c, err := agent.NewCompleter(agent.Config{
			Type:      p.Type,
			BaseURL:   p.BaseURL,
			Model:     model,
			APIKeyEnv: p.APIKeyEnv,
			Timeout:   time.Duration(p.TimeoutSeconds) * time.Second,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("building provider for agent %q: %w", name, err)
		}
		completers[key] = c
		return c, nil
	}

	agents := map[task.Role]agent.Capability{}
	for name, ac := range cfg.Agents {
		role := task.Role(name)
		if !task.ValidRole(role) {
			return nil, nil, fmt.Errorf("config agent %q is not a known role", name)
		}
		c, err := completerFor(name, ac)
		if err != nil {
			return nil, nil, err
		}
		agents[role] = agent.NewRoleAgent(role, c, name+"-agent")
	}
	for _, role := range task.Roles() {
		if _, ok := agents[role]; !ok {
			return nil, nil, fmt.Errorf("no agent configured for role %s", role)
		}
	}

	rc, err := completerFor("reviewer", cfg.Reviewer)
	if err != nil {
		return nil, nil, err
	}
	return agents, agent.NewRoleReviewer(rc, "reviewer"), nil
}

// scheduleRules maps configured schedules onto scheduler rules. Validation
// happens in schedule.New so a bad cadence fails startup.
func scheduleRules(scs []config.ScheduleConfig) []*schedule.Rule {
	rules := make([]*schedule.Rule, 0, len(scs))
	for _, sc := range scs {
		cadence := schedule.CadenceInterval
		if sc.Cadence == "daily" {
			cadence = schedule.CadenceDaily
		}
		rules = append(rules, &schedule.Rule{
			Name:     sc.Name,
			Role:     task.Role(sc.Role),
			Payload:  sc.Payload,
			Priority: task.Priority(sc.Priority),
			Cadence:  cadence,
			Every:    time.Duration(sc.EveryMinutes) * time.Minute,
			AtHour:   sc.AtHour,
			AtMinute: sc.AtMinute,
		})
	}
	return rules
}

// seedDemoFacts writes a handful of business records so a fresh install has
// ground truth for the fact checker to reconcile against.
func seedDemoFacts(ctx context.Context, store *persistence.SQLiteStore) error {
	if err := store.UpsertInvoice(ctx, "INV-100", "Acme Corp", 1250.50, "unpaid"); err != nil {
		return err
	}
	if err := store.UpsertInvoice(ctx, "INV-101", "Reyes Roofing", 8400, "paid"); err != nil {
		return err
	}
	if err := store.SetInventory(ctx, "solar-panel-400w", 42); err != nil {
		return err
	}
	if err := store.SetInventory(ctx, "inverter-5kw", 7); err != nil {
		return err
	}
	if err := store.SetPrice(ctx, "solar-panel-400w", 189.99); err != nil {
		return err
	}
	if err := store.SetPrice(ctx, "inverter-5kw", 1149); err != nil {
		return err
	}
	if err := store.UpsertLead(ctx, "LEAD-7", "Jordan Reyes", "jordan@example.com", "Reyes Roofing", "qualified", 8000); err != nil {
		return err
	}
	return store.UpsertInstallation(ctx, "JOB-31", "Acme Corp", "12 Elm St", "CTR-2", "scheduled")
}

func pipelineConfig(pc config.PipelineConfig) pipeline.Config {
	cfg := pipeline.DefaultConfig()
	if pc.Workers > 0 {
		cfg.Workers = pc.Workers
	}
	if pc.CallTimeoutSeconds > 0 {
		cfg.CallTimeout = time.Duration(pc.CallTimeoutSeconds) * time.Second
	}
	if pc.MaxAttempts > 0 {
		cfg.MaxAttempts = pc.MaxAttempts
	}
	if pc.TickMillis > 0 {
		cfg.Tick = time.Duration(pc.TickMillis) * time.Millisecond
	}
	if len(pc.RoleLimits) > 0 {
		cfg.RoleLimits = map[task.Role]int64{}
		for role, limit := range pc.RoleLimits {
			cfg.RoleLimits[task.Role(role)] = limit
		}
	}
	if pc.Retry.InitialMillis > 0 {
		cfg.Retry.InitialInterval = time.Duration(pc.Retry.InitialMillis) * time.Millisecond
	}
	if pc.Retry.MaxMillis > 0 {
		cfg.Retry.MaxInterval = time.Duration(pc.Retry.MaxMillis) * time.Millisecond
	}
	if pc.Retry.Multiplier > 0 {
		cfg.Retry.Multiplier = pc.Retry.Multiplier
	}
	if pc.Retry.RandomizationFactor > 0 {
		cfg.Retry.RandomizationFactor = pc.Retry.RandomizationFactor
	}
	return cfg
}
