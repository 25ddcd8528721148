package observability

import (
	"fmt"
	"log/slog"
	"sync"
)

// observers registry maps observer names to implementations.
// Initialized with "noop" and "slog" for configuration-driven selection.
var (
	observers = map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(slog.Default()),
	}
	mutex sync.RWMutex
)

// GetObserver retrieves a registered observer by name.
//
// This enables configuration-driven observer selection: config files specify
// observers as strings that are resolved at runtime.
//
// Returns an error if the observer name is not registered.
//
// Example:
//
//	observer, err := observability.GetObserver("slog")
//	if err != nil {
//	    log.Fatal(err)
//	}
func GetObserver(name string) (Observer, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	obs, exists := observers[name]
	if !exists {
		return nil, fmt.Errorf("unknown observer: %s", name)
	}
	return obs, nil
}

// RegisterObserver registers a custom observer implementation under the
// given name, making it available to configuration by that name.
//
// Example:
//
//	observability.RegisterObserver("metrics", observability.NewPrometheusObserver())
func RegisterObserver(name string, observer Observer) {
	mutex.Lock()
	defer mutex.Unlock()

	observers[name] = observer
}
