// Package discovery locates reachable agent platform backends.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Backend is a discovered agent platform instance.
type Backend struct {
	ID          string    `json:"id"`          // URL-based identifier
	Service     string    `json:"service"`     // Service name from the health check
	Version     string    `json:"version"`     // Reported version
	URL         string    `json:"url"`         // Base URL, e.g. http://localhost:8000
	Environment string    `json:"environment"` // development, production, ...
	Status      string    `json:"status"`      // "online" or "offline"
	Latency     int64     `json:"latency"`     // Health check round trip in ms
	LastSeen    time.Time `json:"lastSeen"`    // Last successful contact
}

// healthResponse is the platform's GET /health body.
type healthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

// Config holds discovery configuration.
type Config struct {
	// Ports to scan on localhost
	Ports []int
	// Custom URLs to check in addition to port scanning
	CustomURLs []string
	// Probe timeout per endpoint
	Timeout time.Duration
	// How often to refresh discovery
	RefreshInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Ports:           []int{8000, 8001, 8080},
		CustomURLs:      []string{},
		Timeout:         2 * time.Second,
		RefreshInterval: 30 * time.Second,
	}
}

// Service discovers and tracks available backends.
type Service struct {
	cfg        *Config
	httpClient *http.Client

	mu       sync.RWMutex
	backends map[string]*Backend

	onUpdate func([]*Backend)

	stopCh  chan struct{}
	running bool
}

// NewService creates a discovery service.
func NewService(cfg *Config) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Service{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		backends: make(map[string]*Backend),
		stopCh:   make(chan struct{}),
	}
}

// SetOnUpdate sets the callback invoked after each scan.
func (s *Service) SetOnUpdate(fn func([]*Backend)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// Start begins periodic background discovery.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	go s.Scan()

	go func() {
		ticker := time.NewTicker(s.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Scan()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop stops background discovery.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stopCh)
		s.running = false
	}
}

// Scan probes every configured endpoint once and returns the current
// list, previously seen but unreachable backends marked offline.
func (s *Service) Scan() []*Backend {
	var wg sync.WaitGroup
	results := make(chan *Backend, len(s.cfg.Ports)+len(s.cfg.CustomURLs))

	for _, port := range s.cfg.Ports {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			if b := s.Probe(fmt.Sprintf("http://localhost:%d", p)); b != nil {
				results <- b
			}
		}(port)
	}
	for _, url := range s.cfg.CustomURLs {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			if b := s.Probe(u); b != nil {
				results <- b
			}
		}(url)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	s.mu.Lock()
	for _, b := range s.backends {
		b.Status = "offline"
	}
	for b := range results {
		s.backends[b.ID] = b
	}
	list := make([]*Backend, 0, len(s.backends))
	for _, b := range s.backends {
		list = append(list, b)
	}
	callback := s.onUpdate
	s.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].URL < list[j].URL })

	if callback != nil {
		callback(list)
	}
	return list
}

// Probe health-checks one base URL. It returns nil when the endpoint is
// unreachable or does not answer like an agent platform.
func (s *Service) Probe(baseURL string) *Backend {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return nil
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil
	}
	if health.Status == "" {
		return nil
	}

	return &Backend{
		ID:          baseURL,
		Service:     health.Service,
		Version:     health.Version,
		URL:         baseURL,
		Environment: health.Environment,
		Status:      "online",
		Latency:     time.Since(start).Milliseconds(),
		LastSeen:    time.Now(),
	}
}

// Backends returns all known backends.
func (s *Service) Backends() []*Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*Backend, 0, len(s.backends))
	for _, b := range s.backends {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].URL < list[j].URL })
	return list
}
