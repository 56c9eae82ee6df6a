package sink

import "sync"

// Collector keeps every match in memory.
type Collector struct {
	mu      sync.RWMutex
	records []MatchRecord
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Accept(records ...MatchRecord) {
	c.mu.Lock()
	c.records = append(c.records, records...)
	c.mu.Unlock()
}

func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Page returns a copy of up to limit records starting at offset. A
// non-positive limit means everything after offset.
func (c *Collector) Page(offset, limit int) []MatchRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(c.records) {
		return []MatchRecord{}
	}
	end := len(c.records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]MatchRecord, end-offset)
	copy(out, c.records[offset:end])
	return out
}

// Finalize returns the records in encounter order.
func (c *Collector) Finalize() Output {
	return Output{Records: c.Page(0, 0)}
}
