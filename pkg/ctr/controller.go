package ctr

import (
	"fmt"
	"sync"
	"time"

	"github.com/backkem/ske/pkg/ske"
	"github.com/pion/logging"
)

// DefaultQueueDepth is the default number of descriptors a Controller queues.
const DefaultQueueDepth = 8

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// QueueDepth bounds the number of pending descriptors.
	// Default: DefaultQueueDepth
	QueueDepth int

	// AutoProcess runs descriptors on a background goroutine.
	// When false, the caller drives execution with Process.
	AutoProcess bool

	// Latency delays each descriptor to model transfer time.
	Latency time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// DefaultControllerConfig returns a configuration with background processing.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		QueueDepth:  DefaultQueueDepth,
		AutoProcess: true,
	}
}

// Controller is a software DMA transfer service. Descriptors are executed in
// submission order and each completion is notified exactly once, from the
// worker goroutine (AutoProcess) or from the goroutine calling Process.
type Controller struct {
	queue   chan transferJob
	closeCh chan struct{}
	wg      sync.WaitGroup
	latency time.Duration
	log     logging.LeveledLogger

	mu     sync.Mutex
	closed bool
}

type transferJob struct {
	d      *Descriptor
	notify func(Result)
}

// NewController creates a controller. With AutoProcess the worker starts
// immediately; Close stops it.
func NewController(config ControllerConfig) *Controller {
	if config.QueueDepth <= 0 {
		config.QueueDepth = DefaultQueueDepth
	}

	c := &Controller{
		queue:   make(chan transferJob, config.QueueDepth),
		closeCh: make(chan struct{}),
		latency: config.Latency,
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("ctr-dmac")
	}

	if config.AutoProcess {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

// Enqueue implements Transfer.
func (c *Controller) Enqueue(d *Descriptor, notify func(Result)) error {
	if d == nil || notify == nil {
		return fmt.Errorf("%w: nil descriptor or notify", ske.ErrInvalidParameter)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrControllerClosed
	}
	select {
	case c.queue <- transferJob{d: d, notify: notify}:
		return nil
	default:
		return ErrControllerBusy
	}
}

// Pending returns the number of queued descriptors.
func (c *Controller) Pending() int {
	return len(c.queue)
}

// Process executes every queued descriptor on the calling goroutine and
// returns how many ran. It is meant for controllers without AutoProcess.
func (c *Controller) Process() int {
	n := 0
	for {
		select {
		case job := <-c.queue:
			c.run(job)
			n++
		default:
			return n
		}
	}
}

// Close stops the worker. Descriptors still queued are completed with
// ErrControllerClosed so every accepted request is notified.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	c.closed = true
	c.mu.Unlock()

	if c.log != nil {
		c.log.Info("stopping DMA controller")
	}

	close(c.closeCh)
	c.wg.Wait()

	for {
		select {
		case job := <-c.queue:
			job.notify(Result{Handle: job.d.Handle, Err: ErrControllerClosed})
		default:
			return nil
		}
	}
}

func (c *Controller) worker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.closeCh:
			return
		case job := <-c.queue:
			if c.latency > 0 {
				timer := time.NewTimer(c.latency)
				select {
				case <-timer.C:
				case <-c.closeCh:
					timer.Stop()
					job.notify(Result{Handle: job.d.Handle, Err: ErrControllerClosed})
					return
				}
			}
			c.run(job)
		}
	}
}

func (c *Controller) run(job transferJob) {
	words, err := job.d.Execute()
	if err != nil && c.log != nil {
		c.log.Warnf("descriptor handle=%d failed: %v", job.d.Handle, err)
	}
	job.notify(Result{Handle: job.d.Handle, Words: words, Err: err})
}
