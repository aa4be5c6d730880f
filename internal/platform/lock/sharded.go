package lock

import (
	"context"
	"slices"
	"sync"
)

// numShards bounds the mutex table; unrelated keys may share a shard.
const numShards = 128

// Sharded is an in-process Locker. Keys are hashed onto a fixed table of
// mutexes so memory stays constant however many families exist.
type Sharded struct {
	shards [numShards]chan struct{}
}

// NewSharded builds an in-process locker.
func NewSharded() *Sharded {
	l := &Sharded{}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
	return l
}

func (l *Sharded) Acquire(ctx context.Context, keys ...string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, timeoutErr(err, "")
	}

	// Two keys on one shard must only lock it once.
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		idx = append(idx, shardOf(k))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	held := make([]int, 0, len(idx))
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-l.shards[held[i]]
		}
	}
	for _, i := range idx {
		select {
		case l.shards[i] <- struct{}{}:
			held = append(held, i)
		case <-ctx.Done():
			unlock()
			return nil, timeoutErr(ctx.Err(), keys[0])
		}
	}

	var once sync.Once
	return func() { once.Do(unlock) }, nil
}

func shardOf(key string) int {
	return int(hashString(key) % numShards)
}

// hashString is FNV-1a.
func hashString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}

var _ Locker = (*Sharded)(nil)
