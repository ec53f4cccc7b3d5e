// Package health aggregates dependency checks for the health endpoints.
package health

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates the component has issues but is still functional.
	StatusDegraded Status = "degraded"
)

// Check is the result of a single checker.
type Check struct {
	LastChecked time.Time              `json:"last_checked"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Name        string                 `json:"name"`
	Message     string                 `json:"message,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Status      Status                 `json:"status"`
	Duration    time.Duration          `json:"duration"`
}

// Response is the overall health report.
type Response struct {
	Timestamp   time.Time              `json:"timestamp"`
	System      map[string]interface{} `json:"system,omitempty"`
	Version     string                 `json:"version"`
	Environment string                 `json:"environment"`
	Status      Status                 `json:"status"`
	Checks      []Check                `json:"checks"`
	Uptime      time.Duration          `json:"uptime"`
}

// Checker checks one dependency.
type Checker interface {
	Check(ctx context.Context) Check
	Name() string
	// Critical checkers decide readiness.
	Critical() bool
}

// Service runs the registered checkers.
type Service struct {
	startTime time.Time
	version   string
	env       string
	mu        sync.RWMutex
	checkers  []Checker
}

// NewService creates a health service.
func NewService(version, env string) *Service {
	return &Service{
		startTime: time.Now(),
		version:   version,
		env:       env,
	}
}

// Register adds a checker.
func (s *Service) Register(checker Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers = append(s.checkers, checker)
}

func (s *Service) snapshot(criticalOnly bool) []Checker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Checker, 0, len(s.checkers))
	for _, checker := range s.checkers {
		if !criticalOnly || checker.Critical() {
			out = append(out, checker)
		}
	}
	return out
}

func run(ctx context.Context, checkers []Checker) ([]Check, Status) {
	checks := make([]Check, len(checkers))
	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func(i int, checker Checker) {
			defer wg.Done()
			start := time.Now()
			check := checker.Check(ctx)
			check.Name = checker.Name()
			check.Duration = time.Since(start)
			check.LastChecked = time.Now()
			checks[i] = check
		}(i, checker)
	}
	wg.Wait()

	overall := StatusHealthy
	for i, check := range checks {
		switch {
		case check.Status == StatusUnhealthy && checkers[i].Critical():
			overall = StatusUnhealthy
		case check.Status != StatusHealthy && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}
	return checks, overall
}

// Check runs every checker. Only critical failures make the result unhealthy.
func (s *Service) Check(ctx context.Context) Response {
	checks, status := run(ctx, s.snapshot(false))
	return Response{
		Status:      status,
		Timestamp:   time.Now(),
		Version:     s.version,
		Uptime:      time.Since(s.startTime),
		Checks:      checks,
		System:      systemInfo(),
		Environment: s.env,
	}
}

// Readiness runs the critical checkers only.
func (s *Service) Readiness(ctx context.Context) Response {
	checks, status := run(ctx, s.snapshot(true))
	return Response{
		Status:      status,
		Timestamp:   time.Now(),
		Version:     s.version,
		Uptime:      time.Since(s.startTime),
		Checks:      checks,
		Environment: s.env,
	}
}

// Liveness reports that the process is up.
func (s *Service) Liveness() Response {
	return Response{
		Status:      StatusHealthy,
		Timestamp:   time.Now(),
		Version:     s.version,
		Uptime:      time.Since(s.startTime),
		Environment: s.env,
		Checks:      []Check{},
	}
}

func systemInfo() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
		"heap_alloc": memStats.HeapAlloc,
		"gc_cycles":  memStats.NumGC,
	}
}
