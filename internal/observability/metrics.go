package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	types "github.com/yungbote/playhub-backend/internal/domain"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/envutil"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

const namespace = "playhub"

type Metrics struct {
	reg *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	jobAttempts *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	queueDepth  *prometheus.GaugeVec

	cacheOps      *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec
	breakerChange *prometheus.CounterVec

	gameEvents       *prometheus.CounterVec
	storageBootstrap *prometheus.CounterVec

	dbStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	d := envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second)
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

// Init builds the process-wide Metrics once. It returns nil unless METRICS_ENABLED.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("Metrics enabled")
		}
	})
	return instance
}

// New returns Metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request latency in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_inflight_requests",
			Help:      "In-flight API requests.",
		}),
		jobAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_attempts_total",
			Help:      "Executed job attempts by type, resulting status and whether the run ended.",
		}, []string{"job_type", "status", "final"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_attempt_duration_seconds",
			Help:      "Job attempt duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
		}, []string{"job_type", "status"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "Job runs by status.",
		}, []string{"status"}),
		cacheOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Cache lookups by tier (or failing op) and outcome.",
		}, []string{"scope", "outcome"}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"name"}),
		breakerChange: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"name", "to"}),
		gameEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "game_events_total",
			Help:      "Game lifecycle events published.",
		}, []string{"event"}),
		storageBootstrap: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "object_storage_bootstrap_total",
			Help:      "Object storage provider bootstrap attempts by mode, outcome and error code.",
		}, []string{"mode", "outcome", "error_code"}),
		dbStats: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool",
			Help:      "database/sql pool statistics.",
		}, []string{"stat"}),
		redisUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "redis_up",
			Help:      "1 when the last redis ping succeeded.",
		}),
		redisPing: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "redis_ping_seconds",
			Help:      "Latency of the last successful redis ping.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// StartServer exposes Handler on its own listener when addr is set.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

// JobFinished records one executed attempt.
func (m *Metrics) JobFinished(jobType, status string, final bool, d time.Duration) {
	if m == nil {
		return
	}
	m.jobAttempts.WithLabelValues(jobType, status, strconv.FormatBool(final)).Inc()
	m.jobDuration.WithLabelValues(jobType, status).Observe(d.Seconds())
}

func (m *Metrics) CacheHit(tier string) {
	if m != nil {
		m.cacheOps.WithLabelValues(tier, "hit").Inc()
	}
}

func (m *Metrics) CacheMiss(tier string) {
	if m != nil {
		m.cacheOps.WithLabelValues(tier, "miss").Inc()
	}
}

func (m *Metrics) CacheError(op string) {
	if m != nil {
		m.cacheOps.WithLabelValues(op, "error").Inc()
	}
}

func (m *Metrics) BreakerStateChanged(name, from, to string) {
	if m == nil {
		return
	}
	v := 0.0
	switch to {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	m.breakerState.WithLabelValues(name).Set(v)
	m.breakerChange.WithLabelValues(name, to).Inc()
}

func (m *Metrics) GameEvent(event string) {
	if m != nil {
		m.gameEvents.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) StorageBootstrap(mode, outcome, code string) {
	if m != nil {
		m.storageBootstrap.WithLabelValues(mode, outcome, code).Inc()
	}
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go every(ctx, scrapeInterval(), func() {
		sqlDB, err := db.DB()
		if err != nil {
			if log != nil {
				log.Warn("metrics: db stats unavailable", "error", err)
			}
			return
		}
		stats := sqlDB.Stats()
		m.dbStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
		m.dbStats.WithLabelValues("in_use").Set(float64(stats.InUse))
		m.dbStats.WithLabelValues("idle").Set(float64(stats.Idle))
		m.dbStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
		m.dbStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
		m.dbStats.WithLabelValues("max_open_connections").Set(float64(stats.MaxOpenConnections))
	})
}

// StartRedisCollector pings rdb on the scrape interval. The caller owns rdb.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *goredis.Client) {
	if m == nil || rdb == nil {
		return
	}
	go every(ctx, scrapeInterval(), func() {
		m.pingRedis(ctx, log, rdb)
	})
}

func (m *Metrics) pingRedis(ctx context.Context, log *logger.Logger, rdb *goredis.Client) {
	start := time.Now()
	if err := rdb.Ping(ctx).Err(); err != nil {
		m.redisUp.Set(0)
		if log != nil {
			log.Warn("metrics: redis ping failed", "error", err)
		}
		return
	}
	m.redisUp.Set(1)
	m.redisPing.Set(time.Since(start).Seconds())
}

func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, jobs repos.JobRunRepo) {
	if m == nil || jobs == nil {
		return
	}
	go every(ctx, scrapeInterval(), func() {
		m.collectQueueDepth(ctx, log, db, jobs)
	})
}

func (m *Metrics) collectQueueDepth(ctx context.Context, log *logger.Logger, db *gorm.DB, jobs repos.JobRunRepo) {
	counts, err := jobs.CountByStatus(dbctx.Context{Ctx: ctx, Tx: db})
	if err != nil {
		if log != nil {
			log.Warn("metrics: job queue depth query failed", "error", err)
		}
		return
	}
	for _, s := range []string{
		types.JobStatusQueued, types.JobStatusRunning, types.JobStatusSucceeded,
		types.JobStatusFailed, types.JobStatusCanceled,
	} {
		m.queueDepth.WithLabelValues(s).Set(0)
	}
	for status, n := range counts {
		status = strings.TrimSpace(status)
		if status == "" {
			status = "unknown"
		}
		m.queueDepth.WithLabelValues(status).Set(float64(n))
	}
}

func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
