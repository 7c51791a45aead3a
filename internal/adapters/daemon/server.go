// Package daemon implements the background scheduling service.
package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/planfab/planfab/internal/adapters/notifications"
	"github.com/planfab/planfab/internal/adapters/storage"
	"github.com/planfab/planfab/internal/core/ports"
	"github.com/planfab/planfab/internal/core/services"
)

// Server hosts the scheduling engine behind a unix socket.
type Server struct {
	config    Config
	listener  net.Listener
	db        *storage.DB
	logger    ports.Logger
	machines  ports.MachineRepository
	taskSvc   *services.TaskService
	scheduler *services.Scheduler
	events    *services.EventService
	startedAt time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool
}

// Config holds daemon configuration.
type Config struct {
	SocketPath      string
	PIDFile         string
	DataDir         string
	ShutdownTimeout time.Duration
	WebhookURL      string
	WebhookHeaders  string
}

// DefaultConfig returns the default daemon configuration.
func DefaultConfig(planfabDir string) Config {
	return Config{
		SocketPath:      filepath.Join(planfabDir, "planfab.sock"),
		PIDFile:         filepath.Join(planfabDir, "planfab.pid"),
		DataDir:         filepath.Join(planfabDir, "data"),
		ShutdownTimeout: 10 * time.Second,
	}
}

// NewServer creates a new daemon server with the full engine wired up.
func NewServer(config Config, logger ports.Logger) (*Server, error) {
	dbConfig := storage.DefaultConfig(config.DataDir)
	db, err := storage.New(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	taskRepo := storage.NewTaskRepository(db)
	machineRepo := storage.NewMachineRepository(db)

	store := services.NewQueueStore()
	events := services.NewEventService(logger)
	clock := services.SystemClock{}

	scheduler := services.NewScheduler(taskRepo, machineRepo, store, clock, events, logger)
	taskSvc := services.NewTaskService(taskRepo, store, logger)

	if config.WebhookURL != "" {
		notifier := notifications.NewWebhookNotifier(config.WebhookURL, config.WebhookHeaders, logger)
		notifier.Attach(events)
	}

	return &Server{
		config:    config,
		db:        db,
		logger:    logger,
		machines:  machineRepo,
		taskSvc:   taskSvc,
		scheduler: scheduler,
		events:    events,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start starts the daemon server.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	// Queues live in memory; rebuild them from committed schedules.
	if err := s.scheduler.Rebuild(ctx); err != nil {
		return fmt.Errorf("failed to rebuild queues: %w", err)
	}

	// Remove stale socket
	os.Remove(s.config.SocketPath)

	listener, err := net.Listen("unix", s.config.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	s.listener = listener

	if err := os.WriteFile(s.config.PIDFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
		listener.Close()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	s.logger.Info("Daemon started", "socket", s.config.SocketPath, "pid", os.Getpid())

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	return nil
}

// Stop gracefully stops the daemon.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping daemon...")

	close(s.stopCh)

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()

	if s.db != nil {
		s.db.Close()
	}

	os.Remove(s.config.SocketPath)
	os.Remove(s.config.PIDFile)

	s.logger.Info("Daemon stopped")
	return nil
}

// IsRunning returns whether the daemon is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetStatus returns the daemon status.
func (s *Server) GetStatus() ports.DaemonStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := ""
	if s.running {
		uptime = time.Since(s.startedAt).Round(time.Second).String()
	}

	return ports.DaemonStatus{
		Running:   s.running,
		StartedAt: s.startedAt.Format(time.RFC3339),
		Uptime:    uptime,
	}
}
