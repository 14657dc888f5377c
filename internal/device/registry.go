package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// refreshConcurrency bounds parallel refreshes in RefreshAll.
const refreshConcurrency = 8

// Registry holds the clients of every configured device and fans their
// state changes out to subscribers.
//
// All public methods are thread-safe.
type Registry struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex

	subscribers map[int]func(StateChange)
	nextSub     int
	subsMu      sync.RWMutex

	logger Logger
}

// RegistryStats summarises the registry.
type RegistryStats struct {
	TotalDevices     int `json:"total_devices"`
	ConnectedDevices int `json:"connected_devices"`
	ValidCaches      int `json:"valid_caches"`
	PendingWrites    int `json:"pending_writes"`
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients:     make(map[string]*Client),
		subscribers: make(map[int]func(StateChange)),
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Add registers a client and routes its state changes to subscribers.
// Returns ErrDeviceExists if the device id is already registered.
func (r *Registry) Add(c *Client) error {
	r.clientsMu.Lock()
	defer r.clientsMu.Unlock()

	if _, ok := r.clients[c.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDeviceExists, c.ID())
	}
	c.SetOnStateChange(r.publish)
	r.clients[c.ID()] = c

	r.logger.Info("device added", "device_id", c.ID(), "profile", c.Profile().ID, "name", c.Name())
	return nil
}

// Get returns the client for a device id.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Get(id string) (*Client, error) {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()

	c, ok := r.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return c, nil
}

// List returns every client sorted by device id.
func (r *Registry) List() []*Client {
	r.clientsMu.RLock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	r.clientsMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Remove closes and unregisters a device.
func (r *Registry) Remove(id string) error {
	r.clientsMu.Lock()
	c, ok := r.clients[id]
	delete(r.clients, id)
	r.clientsMu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	c.SetOnStateChange(nil)

	r.logger.Info("device removed", "device_id", id)
	return c.Close()
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	return len(r.clients)
}

// Subscribe registers fn for every state change of every device.
// The returned function removes the subscription.
//
// fn runs on the goroutine that caused the change and must not block.
func (r *Registry) Subscribe(fn func(StateChange)) (unsubscribe func()) {
	r.subsMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = fn
	r.subsMu.Unlock()

	return func() {
		r.subsMu.Lock()
		delete(r.subscribers, id)
		r.subsMu.Unlock()
	}
}

func (r *Registry) publish(change StateChange) {
	r.subsMu.RLock()
	subs := make([]func(StateChange), 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		subs = append(subs, fn)
	}
	r.subsMu.RUnlock()

	for _, fn := range subs {
		fn(change)
	}
}

// RefreshAll refreshes every stale device concurrently.
//
// Returns:
//   - int: number of devices whose refresh failed
//   - error: every failure joined, or nil
func (r *Registry) RefreshAll(ctx context.Context) (int, error) {
	clients := r.List()

	var (
		mu   sync.Mutex
		errs []error
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for _, c := range clients {
		g.Go(func() error {
			if err := c.Refresh(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", c.ID(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	return len(errs), errors.Join(errs...)
}

// Stats returns a summary of every registered device.
func (r *Registry) Stats() RegistryStats {
	clients := r.List()
	stats := RegistryStats{TotalDevices: len(clients)}
	for _, c := range clients {
		st := c.Status()
		if st.Connected {
			stats.ConnectedDevices++
		}
		if st.CacheValid {
			stats.ValidCaches++
		}
		stats.PendingWrites += st.PendingWrites
	}
	return stats
}

// Close closes every client and empties the registry.
func (r *Registry) Close() error {
	r.clientsMu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.clientsMu.Unlock()

	var errs []error
	for id, c := range clients {
		c.SetOnStateChange(nil)
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
