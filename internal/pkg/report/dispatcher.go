package report

import (
	"context"
	"k8s.io/klog/v2"
	"sync"
)

// Dispatcher delivers events to a set of ExportFormatters from a pool of background workers. Publishing never
// blocks the download path: when the queue is full the event is dropped and logged.
type Dispatcher struct {
	events     chan *Event
	formatters []ExportFormatter
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
}

// NewDispatcher creates a Dispatcher with the given queue size. Call Start before publishing.
func NewDispatcher(queueSize int, formatters ...ExportFormatter) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		events:     make(chan *Event, queueSize),
		formatters: formatters,
	}
}

// Start launches concurrency workers which drain the queue until Close is called or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	d.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go d.deliver(ctx)
	}
}

// Publish queues an event for delivery. Events published after Close are dropped.
func (d *Dispatcher) Publish(e *Event) {
	if e == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		klog.Warningf("Event dispatcher closed, dropping %s event for %s", e.Kind, e.ArtifactID)
		return
	}
	select {
	case d.events <- e:
	default:
		klog.Warningf("Event queue full, dropping %s event for %s", e.Kind, e.ArtifactID)
	}
}

// Close stops accepting events and waits for the workers to drain the queue.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// deliver formats and exports each event received from the queue; can safely be called concurrently.
func (d *Dispatcher) deliver(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case e, ok := <-d.events:
			// End this worker if the channel is closed and there are no more items in the channel
			if !ok {
				return
			}
			for _, f := range d.formatters {
				msgs, err := f.Format([]*Event{e})
				if err != nil {
					klog.Errorf("Failed to format %s event for %s: %v", e.Kind, e.ArtifactID, err)
					continue
				}
				if err := f.Export(msgs); err != nil {
					klog.Errorf("Failed to export %s event for %s: %v", e.Kind, e.ArtifactID, err)
				}
			}
		case <-ctx.Done():
			klog.Info("Received cancellation signal, stopping event dispatcher...")
			return
		}
	}
}
