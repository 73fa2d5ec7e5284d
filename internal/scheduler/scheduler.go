package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// BatchProcessor is the dependency that actually does the work.
// The scheduler will call ProcessBatch on a fixed interval.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context) error
}

// SchedulerService exposes a small control surface for the monitor loop.
// Start/Stop are synchronous controls, IsRunning reports whether the
// scheduler is currently accepting ticks and Close ends the loop for good.
type SchedulerService interface {
	Start() error
	Stop() error
	IsRunning() bool
	Close() error
}

// DefaultInterval is used when no custom interval is provided.
const DefaultInterval = 30 * time.Second

// DefaultStopWait is how long Start and Stop wait for an in-flight cycle
// to finish before giving up.
const DefaultStopWait = 2 * time.Minute

// controlTimeout is how long we wait for the control loop to
// accept a command and acknowledge it.
const controlTimeout = 2 * time.Second

// ErrClosed is returned by control calls made after Close.
var ErrClosed = errors.New("scheduler closed")

type controlOp int

const (
	opStart controlOp = iota
	opStop
)

// controlMsg is sent over the ctrl channel to drive the scheduler's state.
type controlMsg struct {
	op   controlOp
	resp chan bool
}

// schedulerService owns the internal state and runs the control loop.
// Only the loop goroutine writes running; readers use the atomic.
//
// Cycles carry no deadline of their own: every provider call is already
// bounded, and a shared deadline would starve the later steps of a cycle.
// ctx is cancelled only by Close.
type schedulerService struct {
	processor BatchProcessor
	interval  time.Duration
	stopWait  time.Duration
	logger    *zap.Logger

	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	ctrl chan controlMsg
	quit chan struct{}
	done chan struct{}
}

// NewSchedulerService creates a new scheduler with the given interval.
// stopWait bounds how long Start and Stop wait for an in-flight cycle.
// Values <= 0 use the defaults.
func NewSchedulerService(
	processor BatchProcessor,
	interval time.Duration,
	stopWait time.Duration,
	logger *zap.Logger,
) SchedulerService {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if stopWait <= 0 {
		stopWait = DefaultStopWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &schedulerService{
		processor: processor,
		interval:  interval,
		stopWait:  stopWait,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		ctrl:      make(chan controlMsg),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	go s.loop()

	return s
}

// Start tells the scheduler to begin processing ticks.
// It blocks until the loop has acknowledged the state change.
func (s *schedulerService) Start() error {
	return s.send(opStart, s.stopWait)
}

// Stop tells the scheduler to stop accepting new ticks.
// If a cycle is currently running, Stop waits until it finishes
// (or stopWait passes) before returning.
func (s *schedulerService) Stop() error {
	return s.send(opStop, s.stopWait)
}

// IsRunning reports whether the scheduler is in "running" mode.
// It does not mean that a cycle is actively executing.
func (s *schedulerService) IsRunning() bool {
	return s.running.Load()
}

// Close cancels an in-flight cycle, which persists what it has done so far,
// and stops the control loop goroutine. Calling Close more than once is safe.
func (s *schedulerService) Close() error {
	select {
	case <-s.quit:
	default:
		s.cancel()
		close(s.quit)
	}
	<-s.done
	return nil
}

// send hands op to the loop. The loop only reads commands between cycles,
// so timeout must cover one full cycle.
func (s *schedulerService) send(op controlOp, timeout time.Duration) error {
	resp := make(chan bool, 1)
	msg := controlMsg{op: op, resp: resp}

	select {
	case s.ctrl <- msg:
	case <-s.done:
		return ErrClosed
	case <-time.After(timeout):
		return fmt.Errorf("scheduler: control loop not responding")
	}

	select {
	case <-resp:
		return nil
	case <-time.After(controlTimeout):
		return fmt.Errorf("scheduler: acknowledgement timeout")
	}
}

// loop reacts to control messages and timer ticks until Close.
func (s *schedulerService) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			if s.running.Swap(false) {
				s.logger.Info("scheduler closed")
			}
			return

		case msg := <-s.ctrl:
			switch msg.op {
			case opStart:
				if !s.running.Swap(true) {
					s.logger.Info("scheduler started",
						zap.Duration("interval", s.interval),
						zap.Duration("stopWait", s.stopWait))
				}
				msg.resp <- true

			case opStop:
				// Cycles run on this goroutine, so none is in flight here.
				if s.running.Swap(false) {
					s.logger.Info("scheduler stopped")
				}
				msg.resp <- true
			}

		case <-ticker.C:
			if !s.running.Load() {
				continue
			}
			s.runCycle()
		}
	}
}

// runCycle executes one batch. Errors and panics are logged and never
// escape, so the loop keeps going.
func (s *schedulerService) runCycle() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("monitor cycle panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	started := time.Now()
	if err := s.processor.ProcessBatch(s.ctx); err != nil {
		s.logger.Error("monitor cycle failed", zap.Error(err), zap.Duration("took", time.Since(started)))
		return
	}
	s.logger.Debug("monitor cycle completed", zap.Duration("took", time.Since(started)))
}
