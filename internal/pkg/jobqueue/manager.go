package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ApexAgent/internal/pkg/env"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue           *Queue
	reconciler      *Reconciler
	reconcileTicker *time.Ticker
	stopCh          chan struct{}
	wg              sync.WaitGroup
	mu              sync.Mutex
	running         bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager(NewQueue(env.GetEnvInt("JOB_QUEUE_WORKERS", 5)))
	})
	return globalManager
}

// NewManager wraps a queue; used directly in tests
func NewManager(queue *Queue) *Manager {
	return &Manager{
		queue:  queue,
		stopCh: make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// SetReconciler installs the stuck-meeting sweep. It takes effect on the next Start.
func (m *Manager) SetReconciler(r *Reconciler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciler = r
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.reconciler != nil {
		m.reconcileTicker = time.NewTicker(m.reconciler.Interval())
		m.wg.Add(1)
		go m.reconcileWorker(m.reconcileTicker, m.stopCh)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// reconcileWorker periodically re-enqueues meetings stuck in processing
func (m *Manager) reconcileWorker(ticker *time.Ticker, stopCh chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started reconcile worker (interval: %s)", m.reconciler.Interval())

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Reconcile worker stopping")
			return
		case <-ticker.C:
			if err := m.RunReconcileOnce(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Reconcile error: %v", err)
			}
		}
	}
}

// RunReconcileOnce exposes a manual trigger for a single sweep
func (m *Manager) RunReconcileOnce(ctx context.Context) error {
	if m.reconciler == nil {
		return nil
	}
	n, err := m.reconciler.RunOnce(ctx)
	if n > 0 {
		log.Infof("[JobQueue Manager] Reconcile re-enqueued %d meetings", n)
	}
	return err
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
