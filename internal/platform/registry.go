package platform

import (
	"fmt"
	"strings"
	"sync"
)

// Registry holds the registered platform adapters and their outbound
// senders. It must be created via NewRegistry and passed explicitly to the
// components that need it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Type]Adapter
	senders  map[Type]Sender
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[Type]Adapter{},
		senders:  map[Type]Sender{},
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	pt := normalizeType(adapter.Type().String())
	if pt == "" {
		return fmt.Errorf("platform type is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[pt]; exists {
		return fmt.Errorf("platform type already registered: %s", pt)
	}
	r.adapters[pt] = adapter
	if sender, ok := adapter.(Sender); ok {
		r.senders[pt] = sender
	}
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// RegisterSender attaches an outbound sender for a platform whose adapter
// does not itself implement Sender.
func (r *Registry) RegisterSender(platformType Type, sender Sender) {
	pt := normalizeType(platformType.String())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[pt] = sender
}

// Get returns the adapter for the given platform type.
func (r *Registry) Get(platformType Type) (Adapter, bool) {
	pt := normalizeType(platformType.String())
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[pt]
	return adapter, ok
}

// GetSender returns the outbound sender for the given platform type.
func (r *Registry) GetSender(platformType Type) (Sender, bool) {
	pt := normalizeType(platformType.String())
	r.mu.RLock()
	defer r.mu.RUnlock()
	sender, ok := r.senders[pt]
	return sender, ok
}

// Types returns all registered platform types.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Type, 0, len(r.adapters))
	for pt := range r.adapters {
		items = append(items, pt)
	}
	return items
}

// Detect walks the registered adapters and returns the one whose CanHandle
// accepts the payload. Used when one transport serves several integrations.
func (r *Registry) Detect(payload []byte) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, adapter := range r.adapters {
		if adapter.CanHandle(payload) {
			return adapter, true
		}
	}
	return nil, false
}

// ParseType validates and normalizes a raw string into a registered Type.
func (r *Registry) ParseType(raw string) (Type, error) {
	pt := normalizeType(raw)
	if pt == "" {
		return "", fmt.Errorf("unsupported platform type: %s", raw)
	}
	if _, ok := r.Get(pt); !ok {
		return "", fmt.Errorf("unsupported platform type: %s", raw)
	}
	return pt, nil
}

func normalizeType(raw string) Type {
	normalized := strings.TrimSpace(strings.ToLower(raw))
	if normalized == "" {
		return ""
	}
	return Type(normalized)
}
