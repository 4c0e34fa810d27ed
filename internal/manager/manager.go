package manager

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kingsmao/exchange-gateway/internal/cache"
	"github.com/kingsmao/exchange-gateway/pkg/interfaces"
	"github.com/kingsmao/exchange-gateway/pkg/logger"
)

// ComponentInfo holds a registered component and its run state.
type ComponentInfo struct {
	Component interfaces.Component
	Started   bool
}

// Manager coordinates gateway components and owns the shared market data cache.
type Manager struct {
	cache      *cache.MemoryCache
	components map[string]*ComponentInfo
	mu         sync.RWMutex
}

func NewManager(c *cache.MemoryCache) *Manager {
	if c == nil {
		c = cache.NewMemoryCache()
	}
	return &Manager{
		cache:      c,
		components: make(map[string]*ComponentInfo),
	}
}

func (m *Manager) AddComponent(c interfaces.Component) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[c.Name()] = &ComponentInfo{Component: c}
}

// RemoveComponent unregisters a component. Its background work stops with the start context.
func (m *Manager) RemoveComponent(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.components[name]; !exists {
		return fmt.Errorf("component %s not found", name)
	}
	delete(m.components, name)
	logger.Info("组件 %s 已从manager中删除", name)
	return nil
}

// GetComponent returns a copy of the component's registration.
func (m *Manager) GetComponent(name string) (ComponentInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.components[name]
	if !ok {
		return ComponentInfo{}, false
	}
	return *info, true
}

// Names returns registered component names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.components))
	for n := range m.components {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) Cache() *cache.MemoryCache { return m.cache }

// StartAll starts every component not yet started, concurrently.
// It succeeds when at least one component is running.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed []string
	var successCount int

	for _, info := range m.components {
		if info.Started {
			successCount++
			continue
		}
		wg.Add(1)
		go func(ci *ComponentInfo) {
			defer wg.Done()
			name := ci.Component.Name()

			if err := ci.Component.Start(ctx); err != nil {
				mu.Lock()
				failed = append(failed, name)
				mu.Unlock()
				logger.Error("组件 %s 启动失败: %v", name, err)
				return
			}

			mu.Lock()
			ci.Started = true
			successCount++
			mu.Unlock()
			logger.Info("组件 %s 启动成功", name)
		}(info)
	}
	wg.Wait()

	if len(failed) > 0 {
		sort.Strings(failed)
		logger.Info("组件启动完成: %d 个成功, %d 个失败", successCount, len(failed))
		logger.Warn("失败的组件: %v", failed)
	} else {
		logger.Info("所有组件启动成功: %d 个", successCount)
	}

	if successCount > 0 {
		return nil
	}
	if len(failed) == 0 {
		return fmt.Errorf("没有可启动的组件")
	}
	return fmt.Errorf("所有组件启动失败: %s", strings.Join(failed, ", "))
}
