package channel

import (
	"sort"
	"sync"
)

// Constructor builds an adapter from platform credentials
type Constructor func(cfg Config) Adapter

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// RegisterChannel adds or replaces the constructor for a platform.
// Adapter packages call it from init().
func RegisterChannel(name string, ctor Constructor) {
	if name == "" || ctor == nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// RemoveChannel drops a platform from the registry
func RemoveChannel(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
}

// GetChannelAdapter builds an adapter for the platform, or returns nil when
// no constructor is registered under that name.
func GetChannelAdapter(name string, cfg Config) Adapter {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil
	}
	return ctor(cfg)
}

// GetRegisteredPlatforms returns the registered platform names, sorted
func GetRegisteredPlatforms() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
