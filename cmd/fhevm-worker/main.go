// Command fhevm-worker runs the admission daemon: it pops pending
// homomorphic operations from a Redis queue, estimates their device
// memory footprint, reserves that footprint against a per-device
// budget, executes the operation, and stores the result.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/gpu"
	"github.com/luxfi/fhevm/internal/health"
	"github.com/luxfi/fhevm/internal/queue"
	"github.com/luxfi/fhevm/internal/storage"
)

// popTimeout bounds a single queue poll so idle workers keep their
// liveness tick fresh between jobs.
const popTimeout = 5 * time.Second

// Config is the daemon configuration. Values come from the YAML file
// given with -config, and any flag passed explicitly on the command
// line overrides the file.
type Config struct {
	Workers      int      `yaml:"workers"`
	RedisAddr    string   `yaml:"redis_addr"`
	RedisDB      int      `yaml:"redis_db"`
	Queue        string   `yaml:"queue"`
	Storage      string   `yaml:"storage"` // memory, file or sqlite
	StoragePath  string   `yaml:"storage_path"`
	Devices      []uint64 `yaml:"devices"` // total memory per device, in bytes
	Headroom     float64  `yaml:"headroom"`
	RetryDelayMS int      `yaml:"retry_delay_ms"`
	ListenAddr   string   `yaml:"listen_addr"`
}

// DefaultConfig returns the configuration the daemon runs with when
// neither a file nor flags say otherwise: one 16 GiB device at the
// standard headroom.
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		RedisAddr:    "localhost:6379",
		Queue:        "default",
		Storage:      "file",
		StoragePath:  "/var/lib/fhevm/ciphertexts",
		Devices:      []uint64{16 << 30},
		Headroom:     gpu.DefaultHeadroom,
		RetryDelayMS: 2,
		ListenAddr:   ":9090",
	}
}

func loadConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Executor runs an admitted operation on a device and returns the
// result ciphertext. The trivial executor below stands in for the
// accelerator runtime so the admission pipeline runs end to end on
// machines without device hardware.
type Executor interface {
	Execute(ctx context.Context, op fhevm.Op, operands []fhevm.Operand, device int) (*fhevm.Ciphertext, error)
}

// trivialExecutor produces a trivially-encrypted zero of the result
// type in place of a real device computation.
type trivialExecutor struct {
	model fhevm.CostModel
}

func (e trivialExecutor) Execute(_ context.Context, op fhevm.Op, operands []fhevm.Operand, _ int) (*fhevm.Ciphertext, error) {
	t, ok := fhevm.ResultType(op, operands)
	if !ok {
		return nil, fmt.Errorf("operands do not determine a result type for %s", op)
	}
	zero := fhevm.Scalar(nil).CoerceBE(t.NumBits())
	return fhevm.TrivialCiphertext(e.model, t, []byte(zero)), nil
}

// WorkerPool manages a set of workers draining the operation queue.
type WorkerPool struct {
	numWorkers int
	numDevices int
	queue      queue.Queue
	storage    storage.Storage
	estimator  *fhevm.Estimator
	devices    *gpu.Pool
	exec       Executor

	monitor     *health.Monitor
	queueTick   *health.Tick
	storageTick *health.Tick

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running atomic.Bool

	successCount atomic.Int64
	failureCount atomic.Int64
	faultCount   atomic.Int64
}

// NewWorkerPool creates a worker pool draining q into store, admitting
// work through devices.
func NewWorkerPool(numWorkers, numDevices int, q queue.Queue, store storage.Storage,
	est *fhevm.Estimator, devices *gpu.Pool, exec Executor, monitor *health.Monitor,
	queueTick, storageTick *health.Tick) *WorkerPool {
	return &WorkerPool{
		numWorkers:  numWorkers,
		numDevices:  numDevices,
		queue:       q,
		storage:     store,
		estimator:   est,
		devices:     devices,
		exec:        exec,
		monitor:     monitor,
		queueTick:   queueTick,
		storageTick: storageTick,
	}
}

// Start launches the workers.
func (p *WorkerPool) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("worker pool already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	log.Printf("Started %d workers", p.numWorkers)
	return nil
}

// Stop signals all workers to stop and waits for them to finish.
func (p *WorkerPool) Stop() error {
	if !p.running.CompareAndSwap(true, false) {
		return errors.New("worker pool not running")
	}

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("All workers stopped")
		return nil
	case <-time.After(30 * time.Second):
		return errors.New("shutdown timeout: workers did not stop within 30s")
	}
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	log.Printf("Worker %d started", id)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		default:
		}

		p.monitor.Loop().Update()

		popCtx, cancel := context.WithTimeout(ctx, popTimeout)
		job, err := p.queue.Pop(popCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue // idle poll, go round again
			}
			log.Printf("Worker %d: failed to pop job: %v", id, err)
			time.Sleep(time.Second)
			continue
		}
		p.queueTick.Update()

		p.processJob(ctx, id, job)
	}
}

func (p *WorkerPool) processJob(ctx context.Context, workerID int, job *queue.Job) {
	log.Printf("Worker %d: processing job %s (op=%d, device=%d)", workerID, job.ID, job.Operation, job.Device)

	job.Status = queue.StatusProcessing
	if err := p.queue.Update(ctx, job); err != nil {
		log.Printf("Worker %d: failed to update job status: %v", workerID, err)
	}

	if err := p.runJob(ctx, job); err != nil {
		log.Printf("Worker %d: job %s failed: %v", workerID, job.ID, err)
		job.Status = queue.StatusFailed
		job.Error = err.Error()
		p.failureCount.Add(1)
	} else {
		log.Printf("Worker %d: job %s completed (reserved %d bytes)", workerID, job.ID, job.ReservedBytes)
		job.Status = queue.StatusCompleted
		p.successCount.Add(1)
	}

	if err := p.queue.Update(ctx, job); err != nil {
		log.Printf("Worker %d: failed to update job result: %v", workerID, err)
	}
}

// runJob drives one job through the admission pipeline: resolve
// operands, estimate, reserve, execute, store, release. Contract
// faults raised by the estimator or the reservation pool mean the job
// record itself violates the operation contract, so they fail the job
// loudly instead of killing the worker.
func (p *WorkerPool) runJob(ctx context.Context, job *queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			kind, ok := fhevm.FaultKindOf(r)
			if !ok {
				panic(r)
			}
			p.faultCount.Add(1)
			log.Printf("CONTRACT FAULT in job %s: %v", job.ID, r)
			err = fmt.Errorf("contract fault (%s): %v", kind, r)
		}
	}()

	if job.Device < 0 || job.Device >= p.numDevices {
		return fmt.Errorf("device %d out of range (have %d devices)", job.Device, p.numDevices)
	}

	op := fhevm.Op(job.Operation)

	operands := make([]fhevm.Operand, 0, len(job.Operands))
	for i, jo := range job.Operands {
		if jo.IsScalar() {
			operands = append(operands, fhevm.Scalar(jo.Scalar))
			continue
		}
		ct, loadErr := p.storage.Load(ctx, storage.Handle(jo.Handle))
		if loadErr != nil {
			return fmt.Errorf("load operand %d: %w", i, loadErr)
		}
		p.storageTick.Update()
		operands = append(operands, ct)
	}

	amount := p.estimator.Estimate(op, operands)
	if err := p.devices.Reserve(ctx, amount, job.Device); err != nil {
		return fmt.Errorf("reserve %d bytes on device %d: %w", amount, job.Device, err)
	}
	defer p.devices.Release(amount, job.Device)
	job.ReservedBytes = amount

	for _, o := range operands {
		if ct, ok := o.(*fhevm.Ciphertext); ok {
			ct.MoveToDevice(job.Device)
		}
	}

	result, execErr := p.exec.Execute(ctx, op, operands, job.Device)
	if execErr != nil {
		return fmt.Errorf("execute %s: %w", op, execErr)
	}

	handle, storeErr := p.storage.Store(ctx, result)
	if storeErr != nil {
		return fmt.Errorf("store result: %w", storeErr)
	}
	p.storageTick.Update()

	job.ResultHandle = string(handle)
	return nil
}

func newStorage(cfg Config) (storage.Storage, error) {
	switch cfg.Storage {
	case "memory":
		return storage.NewMemoryStorage(1024), nil
	case "file":
		return storage.NewFileStorage(cfg.StoragePath)
	case "sqlite":
		return storage.NewSQLiteStorage(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

// storageProbe returns the health probe matching the storage backend.
func storageProbe(store storage.Storage) health.Probe {
	switch s := store.(type) {
	case *storage.SQLiteStorage:
		return func(ctx context.Context) bool { return s.Ping(ctx) == nil }
	case *storage.FileStorage:
		return func(context.Context) bool {
			_, err := os.Stat(s.BaseDir())
			return err == nil
		}
	default:
		return func(context.Context) bool { return true }
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		workers     = flag.Int("workers", 4, "number of worker goroutines")
		redisAddr   = flag.String("redis", "localhost:6379", "Redis server address")
		redisDB     = flag.Int("redis-db", 0, "Redis database number")
		queueName   = flag.String("queue", "default", "queue name")
		storageKind = flag.String("storage", "file", "storage backend: memory, file or sqlite")
		storagePath = flag.String("storage-path", "/var/lib/fhevm/ciphertexts", "storage directory or database path")
		listenAddr  = flag.String("listen", ":9090", "health and metrics listen address")
	)
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		if err := loadConfig(*configPath, &cfg); err != nil {
			return err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workers":
			cfg.Workers = *workers
		case "redis":
			cfg.RedisAddr = *redisAddr
		case "redis-db":
			cfg.RedisDB = *redisDB
		case "queue":
			cfg.Queue = *queueName
		case "storage":
			cfg.Storage = *storageKind
		case "storage-path":
			cfg.StoragePath = *storagePath
		case "listen":
			cfg.ListenAddr = *listenAddr
		}
	})
	if cfg.Workers < 1 {
		return fmt.Errorf("need at least one worker, got %d", cfg.Workers)
	}
	if len(cfg.Devices) == 0 {
		return errors.New("no devices configured")
	}
	if cfg.Headroom <= 0 || cfg.Headroom > 1 {
		return fmt.Errorf("headroom %g outside (0, 1]", cfg.Headroom)
	}

	log.Printf("Starting FHE admission worker")
	log.Printf("  Workers: %d", cfg.Workers)
	log.Printf("  Redis:   %s (db %d)", cfg.RedisAddr, cfg.RedisDB)
	log.Printf("  Queue:   %s", cfg.Queue)
	log.Printf("  Storage: %s at %s", cfg.Storage, cfg.StoragePath)
	log.Printf("  Devices: %d", len(cfg.Devices))

	q, err := queue.NewRedisQueue(queue.RedisConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB}, cfg.Queue)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	defer q.Close()

	store, err := newStorage(cfg)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	params, err := fhevm.NewParametersFromLiteral(fhevm.PN10QP27)
	if err != nil {
		return fmt.Errorf("create parameters: %w", err)
	}
	model := fhevm.NewLWECostModel(params)
	estimator := fhevm.NewEstimator(model)

	caps := gpu.Budget(cfg.Devices, cfg.Headroom)
	poolCfg := gpu.DefaultConfig()
	poolCfg.RetryDelay = time.Duration(cfg.RetryDelayMS) * time.Millisecond
	devices := gpu.NewPool(caps, poolCfg)
	for i, c := range caps {
		log.Printf("  Device %d: %d bytes reservable", i, c)
	}

	monitor := health.NewMonitor(health.DefaultConfig())
	queueTick := health.NewTick()
	storageTick := health.NewTick()
	monitor.Register("queue", queueTick, func(ctx context.Context) bool { return q.Ping(ctx) == nil })
	monitor.Register("storage", storageTick, storageProbe(store))

	pool := NewWorkerPool(cfg.Workers, len(cfg.Devices), q, store, estimator, devices,
		trivialExecutor{model: model}, monitor, queueTick, storageTick)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := monitor.HealthCheck(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("write health response: %v", err)
		}
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		stats := devices.Stats()
		fmt.Fprintf(w, "# HELP fhevm_jobs_total Total jobs processed by final status.\n")
		fmt.Fprintf(w, "# TYPE fhevm_jobs_total counter\n")
		fmt.Fprintf(w, "fhevm_jobs_total{status=\"success\"} %d\n", pool.successCount.Load())
		fmt.Fprintf(w, "fhevm_jobs_total{status=\"failure\"} %d\n", pool.failureCount.Load())
		fmt.Fprintf(w, "# HELP fhevm_contract_faults_total Jobs failed by an operation contract fault.\n")
		fmt.Fprintf(w, "# TYPE fhevm_contract_faults_total counter\n")
		fmt.Fprintf(w, "fhevm_contract_faults_total %d\n", pool.faultCount.Load())
		fmt.Fprintf(w, "# HELP fhevm_admitted_bytes_total Bytes admitted onto devices.\n")
		fmt.Fprintf(w, "# TYPE fhevm_admitted_bytes_total counter\n")
		fmt.Fprintf(w, "fhevm_admitted_bytes_total %d\n", stats.AdmittedBytes)
		fmt.Fprintf(w, "# HELP fhevm_admission_retries_total Reservation attempts that found a device full.\n")
		fmt.Fprintf(w, "# TYPE fhevm_admission_retries_total counter\n")
		fmt.Fprintf(w, "fhevm_admission_retries_total %d\n", stats.Retries)
	})

	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Printf("Serving health and metrics on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}

	if err := pool.Stop(); err != nil {
		return err
	}

	log.Printf("Processed %d jobs (%d failed, %d contract faults)",
		pool.successCount.Load()+pool.failureCount.Load(),
		pool.failureCount.Load(), pool.faultCount.Load())
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("fhevm-worker: %v", err)
	}
}
