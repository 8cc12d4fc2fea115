package events

import (
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// offsetDedupe remembers the last applied offset per topic partition so a
// redelivered message is not applied twice. Offsets are assigned by the
// broker, so unlike producer clocks they order events across instances.
type offsetDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, int64]
}

func newOffsetDedupe(size int) *offsetDedupe {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, int64](size)
	return &offsetDedupe{lru: c}
}

func partitionKey(topic string, partition int32) string {
	return topic + "/" + strconv.FormatInt(int64(partition), 10)
}

// seen reports whether offset was already applied on topic/partition.
func (d *offsetDedupe) seen(topic string, partition int32, offset int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(partitionKey(topic, partition))
	return ok && offset <= last
}

func (d *offsetDedupe) record(topic string, partition int32, offset int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := partitionKey(topic, partition)
	if last, ok := d.lru.Get(key); ok && last >= offset {
		return
	}
	d.lru.Add(key, offset)
}
