package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when a request cannot be enqueued
var ErrQueueFull = errors.New("queue full")

// Manager coordinates all classifier requests: interactive first, with a
// bounded number of calls in flight.
type Manager struct {
	interactiveQueue chan *Request
	sweepQueue       chan *Request

	semaphore chan struct{}

	breaker    *CircuitBreaker
	httpClient *http.Client

	mu      sync.Mutex
	metrics Metrics

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger *zap.Logger
}

// NewManager creates a new queue manager and starts its dispatcher
func NewManager(config *Config, breaker *CircuitBreaker, logger *zap.Logger) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		interactiveQueue: make(chan *Request, config.InteractiveQueueSize),
		sweepQueue:       make(chan *Request, config.SweepQueueSize),
		semaphore:        make(chan struct{}, config.MaxConcurrent),
		breaker:          breaker,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		metrics: Metrics{
			CurrentQueueDepth: map[Priority]int{
				PriorityInteractive: 0,
				PrioritySweep:       0,
			},
		},
		stopCh: make(chan struct{}),
		logger: logger.Named("llm_queue"),
	}

	m.wg.Add(1)
	go m.dispatcher()

	m.logger.Info("Started", zap.Int("slots", config.MaxConcurrent))
	return m
}

// Submit adds a request to the queue (non-blocking with drop behavior)
func (m *Manager) Submit(req *Request) error {
	queue := m.sweepQueue
	if req.Priority == PriorityInteractive {
		queue = m.interactiveQueue
	}

	m.mu.Lock()
	if req.Priority == PriorityInteractive {
		m.metrics.InteractiveEnqueued++
	} else {
		m.metrics.SweepEnqueued++
	}
	m.mu.Unlock()

	select {
	case queue <- req:
		return nil
	default:
		m.mu.Lock()
		if req.Priority == PriorityInteractive {
			m.metrics.InteractiveDropped++
		} else {
			m.metrics.SweepDropped++
		}
		m.mu.Unlock()
		m.logger.Warn("Queue full, dropping request",
			zap.String("priority", req.Priority.String()),
			zap.String("request_id", req.ID))
		return ErrQueueFull
	}
}

// dispatcher selects the next request (interactive first, then sweep)
func (m *Manager) dispatcher() {
	defer m.wg.Done()

	for {
		var req *Request
		select {
		case req = <-m.interactiveQueue:
		default:
			select {
			case <-m.stopCh:
				return
			case req = <-m.interactiveQueue:
			case req = <-m.sweepQueue:
			}
		}

		select {
		case <-m.stopCh:
			req.ErrorCh <- errors.New("llm queue stopped")
			return
		case m.semaphore <- struct{}{}:
		}

		m.wg.Add(1)
		go m.processRequest(req)
	}
}

// processRequest executes the actual LLM call
func (m *Manager) processRequest(req *Request) {
	defer func() {
		<-m.semaphore
		m.wg.Done()

		m.mu.Lock()
		if req.Priority == PriorityInteractive {
			m.metrics.InteractiveProcessed++
		} else {
			m.metrics.SweepProcessed++
		}
		m.mu.Unlock()
	}()

	start := time.Now()
	if err := req.Context.Err(); err != nil {
		req.ErrorCh <- err
		return
	}

	ctx, cancel := req.Context, context.CancelFunc(func() {})
	if req.Timeout > 0 {
		ctx, cancel = context.WithTimeout(req.Context, req.Timeout)
	}
	defer cancel()

	resp, err := m.execute(ctx, req)
	if err != nil {
		m.logger.Warn("Request failed",
			zap.String("request_id", req.ID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		req.ErrorCh <- err
		return
	}
	m.logger.Debug("Request completed", zap.String("request_id", req.ID), zap.Duration("elapsed", time.Since(start)))
	req.ResponseCh <- resp
}

// execute performs the HTTP call through the circuit breaker
func (m *Manager) execute(ctx context.Context, req *Request) (*Response, error) {
	if m.breaker != nil {
		if err := m.breaker.Allow(); err != nil {
			return nil, err
		}
	}
	resp, err := m.do(ctx, req)
	if m.breaker != nil {
		// a caller giving up is not an endpoint failure
		if errors.Is(err, context.Canceled) {
			m.breaker.Record(nil)
		} else {
			m.breaker.Record(err)
		}
	}
	return resp, err
}

func (m *Manager) do(ctx context.Context, req *Request) (*Response, error) {
	jsonData, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if httpResp.StatusCode >= 500 {
		return nil, fmt.Errorf("LLM returned status %d", httpResp.StatusCode)
	}
	return &Response{StatusCode: httpResp.StatusCode, Body: body}, nil
}

// GetMetrics returns current queue statistics
func (m *Manager) GetMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.metrics
	metrics.CurrentQueueDepth = map[Priority]int{
		PriorityInteractive: len(m.interactiveQueue),
		PrioritySweep:       len(m.sweepQueue),
	}
	return metrics
}

// Stop gracefully shuts down the queue
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	m.logger.Info("Stopped")
}
