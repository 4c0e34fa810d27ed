package cache

import (
	"sort"
	"sync"

	"github.com/kingsmao/exchange-gateway/pkg/interfaces"
)

// SubscriptionManagerImpl implements SubscriptionManager interface
type SubscriptionManagerImpl struct {
	mu       sync.RWMutex
	channels map[string]struct{}
}

// NewSubscriptionManager creates a new subscription manager
func NewSubscriptionManager() interfaces.SubscriptionManager {
	return &SubscriptionManagerImpl{
		channels: make(map[string]struct{}),
	}
}

// Subscribe adds channels, returns newly added channels
func (sm *SubscriptionManagerImpl) Subscribe(channels []string) []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var newlyAdded []string
	for _, ch := range channels {
		if _, exists := sm.channels[ch]; !exists {
			sm.channels[ch] = struct{}{}
			newlyAdded = append(newlyAdded, ch)
		}
	}
	return newlyAdded
}

// Unsubscribe removes channels, returns actually removed channels
func (sm *SubscriptionManagerImpl) Unsubscribe(channels []string) []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var actuallyRemoved []string
	for _, ch := range channels {
		if _, exists := sm.channels[ch]; exists {
			delete(sm.channels, ch)
			actuallyRemoved = append(actuallyRemoved, ch)
		}
	}
	return actuallyRemoved
}

// Channels returns all currently subscribed channels
func (sm *SubscriptionManagerImpl) Channels() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	out := make([]string, 0, len(sm.channels))
	for ch := range sm.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// ClearAll clears all subscriptions
func (sm *SubscriptionManagerImpl) ClearAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.channels = make(map[string]struct{})
}
