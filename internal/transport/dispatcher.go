// Package transport fans newly stored readings out to live WebSocket and SSE clients.
package transport

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/synheart/vitalsynth/internal/models"
)

// liveFeed is one named consumer of the reading stream, usually a hub.
type liveFeed struct {
	name    string
	out     chan models.Reading
	dropped atomic.Int64
}

// Dispatcher forwards every reading the pipeline stores to each live feed.
// A feed whose buffer is full misses that reading; the pipeline's feed channel
// is drained at ingest speed regardless of how fast hubs consume.
type Dispatcher struct {
	readings <-chan models.Reading
	depth    int
	logger   *zap.Logger

	mu      sync.Mutex
	feeds   []*liveFeed
	retired map[string]int64 // drops of feeds closed by Run
}

// NewDispatcher reads from readings and gives each feed a buffer of depth readings.
func NewDispatcher(readings <-chan models.Reading, depth int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if depth < 0 {
		depth = 0
	}
	return &Dispatcher{
		readings: readings,
		depth:    depth,
		logger:   logger,
		retired:  make(map[string]int64),
	}
}

// Subscribe registers a live feed called name. Feeds registered after Run starts
// only see readings stored from then on.
func (d *Dispatcher) Subscribe(name string) <-chan models.Reading {
	feed := &liveFeed{name: name, out: make(chan models.Reading, d.depth)}
	d.mu.Lock()
	d.feeds = append(d.feeds, feed)
	d.mu.Unlock()
	return feed.out
}

// SubscriberCount returns the number of registered feeds.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.feeds)
}

// DroppedCount returns the readings missed across all feeds.
func (d *Dispatcher) DroppedCount() int64 {
	var total int64
	for _, n := range d.Drops() {
		total += n
	}
	return total
}

// Drops returns missed readings per feed name, omitting feeds with none.
func (d *Dispatcher) Drops() map[string]int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	drops := make(map[string]int64, len(d.retired))
	for name, n := range d.retired {
		drops[name] = n
	}
	for _, feed := range d.feeds {
		if n := feed.dropped.Load(); n > 0 {
			drops[feed.name] += n
		}
	}
	return drops
}

// FeedNames returns the registered feed names in sorted order.
func (d *Dispatcher) FeedNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.feeds))
	for _, feed := range d.feeds {
		names = append(names, feed.name)
	}
	sort.Strings(names)
	return names
}

// Run forwards readings until ctx is done or the pipeline closes its feed.
// Every feed channel is closed on return so hubs can stop.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case reading, ok := <-d.readings:
			if !ok {
				return
			}
			d.forward(reading)
		}
	}
}

func (d *Dispatcher) forward(reading models.Reading) {
	d.mu.Lock()
	feeds := d.feeds
	d.mu.Unlock()

	var missed []string
	for _, feed := range feeds {
		select {
		case feed.out <- reading:
		default:
			feed.dropped.Add(1)
			missed = append(missed, feed.name)
		}
	}
	if len(missed) > 0 {
		d.logger.Warn("live feed behind, reading skipped",
			zap.String("reading_id", reading.ID),
			zap.String("device_id", reading.DeviceID),
			zap.Strings("feeds", missed))
	}
}

func (d *Dispatcher) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, feed := range d.feeds {
		if n := feed.dropped.Load(); n > 0 {
			d.retired[feed.name] += n
		}
		close(feed.out)
	}
	d.feeds = nil
}
