package kvfakes

import (
	"context"
	"sync"

	"github.com/orbitlabs/go-session-client/credstore"
)

var _ credstore.KV = (*FakeKV)(nil)

// FakeKV is an in-memory KV for tests. It records the order of Set calls so
// tests can assert write ordering.
type FakeKV struct {
	lock   sync.RWMutex
	values map[string]string

	SetCalls []string // keys, in call order
	SetErr   error    // when non-nil, Set fails with this error

	getCalls int
}

func NewFakeKV() *FakeKV {
	return &FakeKV{values: make(map[string]string)}
}

func (kv *FakeKV) Get(_ context.Context, key string) (string, error) {
	kv.lock.Lock()
	defer kv.lock.Unlock()

	kv.getCalls++
	value, ok := kv.values[key]
	if !ok {
		return "", credstore.ErrNotFound
	}
	return value, nil
}

func (kv *FakeKV) Set(_ context.Context, key, value string) error {
	kv.lock.Lock()
	defer kv.lock.Unlock()

	if kv.SetErr != nil {
		return kv.SetErr
	}
	kv.values[key] = value
	kv.SetCalls = append(kv.SetCalls, key)
	return nil
}

func (kv *FakeKV) Delete(_ context.Context, key string) error {
	kv.lock.Lock()
	defer kv.lock.Unlock()

	delete(kv.values, key)
	return nil
}

// Len reports how many keys currently hold a value.
func (kv *FakeKV) Len() int {
	kv.lock.RLock()
	defer kv.lock.RUnlock()
	return len(kv.values)
}

// Gets reports how many reads have been issued, including misses. Safe to
// call concurrently with a goroutine still using the KV.
func (kv *FakeKV) Gets() int {
	kv.lock.RLock()
	defer kv.lock.RUnlock()
	return kv.getCalls
}

// Put seeds a raw value, bypassing Set bookkeeping.
func (kv *FakeKV) Put(key, value string) {
	kv.lock.Lock()
	defer kv.lock.Unlock()
	kv.values[key] = value
}
