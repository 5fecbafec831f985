package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Publisher ships a collected batch, usually to a Kafka topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// CollectionConfig configures error aggregation.
type CollectionConfig struct {
	TimeInterval   time.Duration // flush period
	CountThreshold int           // distinct entries that force an early flush
	Topic          string
	Publisher      Publisher
}

// AggregatedLogEntry is one distinct (level, message, fields, caller) seen
// Count times during a window.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogBatch is the published payload.
type LogBatch struct {
	From    time.Time            `json:"from"`
	To      time.Time            `json:"to"`
	Entries []AggregatedLogEntry `json:"entries"`
}

// LogCollector folds repeated log lines into counted entries and publishes
// them per window. Batches are sent by one goroutine in order; Close sends
// whatever is pending before returning.
type LogCollector struct {
	cfg CollectionConfig

	mu      sync.Mutex
	entries map[string]*AggregatedLogEntry
	order   []string
	from    time.Time
	closed  bool

	out       chan LogBatch
	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	now       func() time.Time
}

const pendingBatches = 16

// NewLogCollector starts a collector. A zero interval defaults to 30s and a
// zero threshold to 100.
func NewLogCollector(config *CollectionConfig) *LogCollector {
	cfg := *config
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	c := &LogCollector{
		cfg:     cfg,
		entries: make(map[string]*AggregatedLogEntry),
		out:     make(chan LogBatch, pendingBatches),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	c.from = c.now()
	c.wg.Add(2)
	go c.tick()
	go c.send()
	return c
}

// AddLog records one occurrence. It is a no-op after Close.
func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	key := entryKey(level, message, fields, caller)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	c.entries[key] = &AggregatedLogEntry{
		Level:     level,
		Message:   message,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	c.order = append(c.order, key)
	if len(c.entries) >= c.cfg.CountThreshold {
		c.cutLocked(now)
	}
}

// entryKey is stable across map iteration order; encoding/json sorts map keys.
func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	b, err := json.Marshal(fields)
	if err != nil {
		b = []byte(fmt.Sprint(len(fields)))
	}
	return level + "\x00" + caller + "\x00" + message + "\x00" + string(b)
}

// cutLocked closes the current window; entries keep first-seen order. A
// batch is dropped when the sender is backed up.
func (c *LogCollector) cutLocked(now time.Time) {
	if len(c.entries) == 0 {
		c.from = now
		return
	}
	batch := LogBatch{From: c.from, To: now, Entries: make([]AggregatedLogEntry, 0, len(c.entries))}
	for _, k := range c.order {
		batch.Entries = append(batch.Entries, *c.entries[k])
	}
	c.entries = make(map[string]*AggregatedLogEntry)
	c.order = c.order[:0]
	c.from = now

	select {
	case c.out <- batch:
	default:
		fmt.Fprintf(os.Stderr, "log collector: dropped batch of %d entries\n", len(batch.Entries))
	}
}

func (c *LogCollector) tick() {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.TimeInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.mu.Lock()
			c.cutLocked(c.now())
			c.mu.Unlock()
		case <-c.stop:
			c.mu.Lock()
			c.closed = true
			c.cutLocked(c.now())
			c.mu.Unlock()
			close(c.out)
			return
		}
	}
}

func (c *LogCollector) send() {
	defer c.wg.Done()
	for batch := range c.out {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch)
		cancel()
		if err != nil {
			// not via Logger: it would feed back into this collector
			fmt.Fprintf(os.Stderr, "log collector: publish to %s: %v\n", c.cfg.Topic, err)
		}
	}
}

// Close flushes the open window and waits for pending batches to be sent.
func (c *LogCollector) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
	})
}
