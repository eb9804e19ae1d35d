// Package eventbus implements component I: a single-producer, many-consumer
// fan-out of per-tick snapshots and load signals. Delivery is best-effort —
// a subscriber that cannot keep up drops frames rather than blocking the
// producer.
package eventbus

import (
	"sync"

	"github.com/corebalance/corebalance/internal/model"
)

// LoadUpdate carries a scalar load percentage plus its per-core breakdown,
// used for both the memory-load and cpu-load topics.
type LoadUpdate struct {
	Percent float32
	PerCore []float32
}

// subscriberBufferSize bounds how many frames a slow subscriber can lag by
// before new frames start being dropped for it.
const subscriberBufferSize = 4

// Bus fans out process snapshots and load updates to any number of
// subscribers. The zero value is not usable; construct with New.
type Bus struct {
	mu sync.RWMutex

	processSubs    []chan model.Snapshot
	memoryLoadSubs []chan LoadUpdate
	cpuLoadSubs    []chan LoadUpdate
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{}
}

// SubscribeProcessUpdates returns a channel receiving every published
// Snapshot. Call Unsubscribe variants are not provided; subscribers are
// expected to live for the process lifetime (UI, loggers).
func (b *Bus) SubscribeProcessUpdates() <-chan model.Snapshot {
	ch := make(chan model.Snapshot, subscriberBufferSize)
	b.mu.Lock()
	b.processSubs = append(b.processSubs, ch)
	b.mu.Unlock()
	return ch
}

// SubscribeMemoryLoad returns a channel receiving memory-load-update topic
// frames.
func (b *Bus) SubscribeMemoryLoad() <-chan LoadUpdate {
	ch := make(chan LoadUpdate, subscriberBufferSize)
	b.mu.Lock()
	b.memoryLoadSubs = append(b.memoryLoadSubs, ch)
	b.mu.Unlock()
	return ch
}

// SubscribeCPULoad returns a channel receiving cpu-load-update topic frames.
func (b *Bus) SubscribeCPULoad() <-chan LoadUpdate {
	ch := make(chan LoadUpdate, subscriberBufferSize)
	b.mu.Lock()
	b.cpuLoadSubs = append(b.cpuLoadSubs, ch)
	b.mu.Unlock()
	return ch
}

// PublishProcessUpdate fans snap out to every process-update subscriber.
// Subscribers receive a Snapshot value, not a pointer; its Processes slice
// still shares its backing array with the producer's copy.
func (b *Bus) PublishProcessUpdate(snap model.Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.processSubs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// PublishMemoryLoad fans u out to every memory-load subscriber.
func (b *Bus) PublishMemoryLoad(u LoadUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.memoryLoadSubs {
		select {
		case ch <- u:
		default:
		}
	}
}

// PublishCPULoad fans u out to every cpu-load subscriber.
func (b *Bus) PublishCPULoad(u LoadUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.cpuLoadSubs {
		select {
		case ch <- u:
		default:
		}
	}
}
