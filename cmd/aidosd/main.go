// Command aidosd wires the execution core (C1-C17) together the way
// control_plane/main.go wires the teacher's components: env-driven
// config, a promhttp.Handler, and a small demo HTTP/WebSocket surface
// confirming the core's operations are callable from an external layer
// without that layer being part of this repo's scope (spec.md §1).
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itskum47/aidos-core/internal/agentpool"
	"github.com/itskum47/aidos-core/internal/alert"
	"github.com/itskum47/aidos-core/internal/authn"
	"github.com/itskum47/aidos-core/internal/clock"
	"github.com/itskum47/aidos-core/internal/cronutil"
	"github.com/itskum47/aidos-core/internal/dlq"
	aidoserrors "github.com/itskum47/aidos-core/internal/errors"
	"github.com/itskum47/aidos-core/internal/guardian"
	"github.com/itskum47/aidos-core/internal/healing"
	"github.com/itskum47/aidos-core/internal/idempotency"
	"github.com/itskum47/aidos-core/internal/kv"
	"github.com/itskum47/aidos-core/internal/metrics"
	"github.com/itskum47/aidos-core/internal/monitor"
	"github.com/itskum47/aidos-core/internal/notifier"
	"github.com/itskum47/aidos-core/internal/queue"
	"github.com/itskum47/aidos-core/internal/retry"
	"github.com/itskum47/aidos-core/internal/scheduler"
	"github.com/itskum47/aidos-core/internal/taskqueue"
)

const (
	queueTasks     = "aidos:tasks"
	queueScheduler = "aidos:scheduler"
)

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func buildStore() kv.Store {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		log.Printf("aidosd: REDIS_ADDR not set, using in-memory store (single-process only)")
		return kv.NewMemory()
	}
	store, err := kv.NewRedis(redisAddr, os.Getenv("REDIS_PASSWORD"), envInt("REDIS_DB", 0))
	if err != nil {
		log.Fatalf("aidosd: failed to connect to redis at %s: %v", redisAddr, err)
	}
	log.Printf("aidosd: connected to redis at %s", redisAddr)
	return store
}

// CoreContext carries the ambient dependencies every component needs,
// replacing the teacher's ambient globals per spec.md §9.
type CoreContext struct {
	Clock     clock.Clock
	Store     kv.Store
	Metrics   *metrics.Registry
	Publisher notifier.Publisher

	Classifier  *aidoserrors.Classifier
	Budget      *aidoserrors.Budget
	RetryPolicy *retry.Policy
	Idempotency *idempotency.Service

	Queue      *queue.Service
	TaskQueue  *taskqueue.Service
	DLQ        *dlq.Store
	QueueMon   *queue.Monitor
	Scheduler  *scheduler.Scheduler
	Agents     *agentpool.Pool

	Infra     *monitor.InfrastructureMonitor
	App       *monitor.ApplicationMonitor
	Business  *monitor.BusinessMonitor
	Alerts    *alert.Service
	Healing   *healing.Service
	Guardian  *guardian.Guardian
	Cron      *cronutil.Runner
}

// NewCoreContext builds every component, wiring events across them the
// way spec.md §2's data-flow diagram describes.
func NewCoreContext() *CoreContext {
	c := clock.NewSystem()
	store := buildStore()
	m := metrics.New(c, metrics.DefaultRetention)
	pub := notifier.NewLogPublisher(c, "aidos-core")

	classifier := aidoserrors.New(c)
	budget := aidoserrors.NewBudget(c, aidoserrors.DefaultBudgetConfig(), nil)
	retryPolicy := retry.New(retry.DefaultConfig(), classifier, nil, nil)
	idemSvc := idempotency.New(store, c, idempotency.DefaultConfig())

	q := queue.New(c, envInt("QUEUE_THRESHOLD", 1000), 50, 100, queue.DefaultRetention())
	tq := taskqueue.New(q, queueTasks)
	dlqStore := dlq.New(c)
	q.OnExhausted(func(job *queue.Job, lastErr error) {
		taskID, _ := job.Data["taskId"].(string)
		errMsg := ""
		if lastErr != nil {
			errMsg = lastErr.Error()
		}
		dlqStore.Enqueue(dlq.Entry{
			EntryID: c.NewID(), JobID: job.JobID, TaskID: taskID, Queue: job.Queue,
			Payload: job.Data, FailureReason: errMsg, LastError: errMsg,
			AttemptsMade: job.Attempts, EnqueuedAt: c.Now(), RequiresManualIntervention: true,
		})
	})
	qMon := queue.NewMonitor(q)

	sched := scheduler.New(c, tq, queueTasks)
	pool := agentpool.New(true)

	infra := monitor.NewInfrastructureMonitor(c, m, monitor.DefaultThresholds(), 10*time.Second, "/")
	app := monitor.NewApplicationMonitor(m)
	biz := monitor.NewBusinessMonitor(m)

	alerts := alert.New(alert.DefaultConfig(), c.Now)
	heal := healing.New(c, healing.DefaultConfig(), nil)
	grd := guardian.New(c, guardian.DefaultConfig(),
		func(ctx context.Context) error { return store.Ping(ctx) },
		func(ctx context.Context) error { return nil },
	)

	infra.OnThreshold(func(ev monitor.ThresholdEvent) {
		sev := alert.SeverityWarning
		if ev.Severity == "critical" {
			sev = alert.SeverityCritical
		}
		alerts.Process(alert.Event{
			ID: c.NewID(), RuleID: "infra-" + ev.Resource, MetricName: ev.Resource,
			Severity: sev, Value: ev.Value, Timestamp: c.Now(),
			Message: ev.Resource + " threshold crossed",
		})
	})
	alerts.OnRoute(func(channel string, e alert.Event) {
		_ = pub.Publish(context.Background(), channel, map[string]interface{}{
			"ruleId": e.RuleID, "metric": e.MetricName, "value": e.Value, "severity": string(e.Severity),
		})
		heal.CheckAndHeal(context.Background(), e.MetricName, e.Value, e.Severity)
	})

	cronRunner := cronutil.New()
	if _, err := cronRunner.Schedule("@every 10s", func() { infra.Sample() }); err != nil {
		log.Fatalf("aidosd: failed to schedule infrastructure sampling: %v", err)
	}
	if _, err := cronRunner.Schedule("@every 5m", func() { _ = dlqStore.ArchiveOld() }); err != nil {
		log.Fatalf("aidosd: failed to schedule DLQ archival: %v", err)
	}

	return &CoreContext{
		Clock: c, Store: store, Metrics: m, Publisher: pub,
		Classifier: classifier, Budget: budget, RetryPolicy: retryPolicy, Idempotency: idemSvc,
		Queue: q, TaskQueue: tq, DLQ: dlqStore, QueueMon: qMon, Scheduler: sched, Agents: pool,
		Infra: infra, App: app, Business: biz, Alerts: alerts, Healing: heal, Guardian: grd,
		Cron: cronRunner,
	}
}

func main() {
	ctx := context.Background()
	core := NewCoreContext()

	core.Queue.CreateWorker(ctx, queueTasks, envInt("QUEUE_CONCURRENCY", 5), core.TaskQueue.ProcessTask)

	hub := NewEventHub()
	core.Scheduler.OnEvent(func(e scheduler.Event) {
		_ = hub.Broadcast(ctx, e.Type, map[string]interface{}{"taskId": e.TaskID, "error": e.Error})
	})
	core.Agents.OnEvent(func(e agentpool.Event) {
		_ = hub.Broadcast(ctx, e.Type, map[string]interface{}{"agentId": e.AgentID, "taskType": e.TaskType})
	})

	var verifier *authn.HMACVerifier
	if secret := os.Getenv("JWT_SECRET"); len(secret) >= 32 {
		v, err := authn.NewHMACVerifier([]byte(secret), "aidos", "aidos-core")
		if err != nil {
			log.Fatalf("aidosd: %v", err)
		}
		verifier = v
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(core.Metrics.Gatherer(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      core.Guardian.State(),
			"scheduler":   core.Scheduler.GetStatus(),
			"budgetHealthy": core.Budget.IsHealthy(),
		})
	})
	mux.HandleFunc("/ws/events", requireAuth(verifier, hub.ServeHTTP))

	go core.Guardian.Run(ctx)
	core.Cron.Start()
	defer core.Cron.Stop()

	addr := os.Getenv("AIDOSD_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("aidosd: listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("aidosd: server error: %v", err)
	}
}

// requireAuth wraps next with verification of the "token" query parameter
// when verifier is
// configured; with no JWT_SECRET set, the demo surface runs unauthenticated
// (dev mode), matching control_plane/auth/jwt.go's own insecure-dev-default
// behavior but without silently minting a default secret.
func requireAuth(verifier *authn.HMACVerifier, next http.HandlerFunc) http.HandlerFunc {
	if verifier == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if _, err := verifier.Verify(token); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
