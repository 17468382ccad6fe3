// Package calls keeps the registry of simulated calls served over HTTP.
package calls

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aldrinstellus/ivrdemo/internal/ivr"
	"github.com/aldrinstellus/ivrdemo/internal/protocol"
)

var ErrNotFound = errors.New("call not found")

// Call is one registered phone call.
type Call struct {
	ID         string
	Controller *ivr.Controller
	Hub        *Hub
	CreatedAt  time.Time

	cleanup func()
}

// Info is the JSON view of a call.
type Info struct {
	CallID          string      `json:"call_id"`
	CreatedAt       time.Time   `json:"created_at"`
	LastActivityAt  time.Time   `json:"last_activity_at"`
	InactivityTTLMS int64       `json:"inactivity_ttl_ms"`
	Session         ivr.Session `json:"session"`
}

// Builder creates the controller for a new call. Its OnEvent and audio output
// should publish to hub. The returned cleanup runs after the controller closes.
type Builder func(callID string, hub *Hub) (ctrl *ivr.Controller, cleanup func(), err error)

type entry struct {
	call         *Call
	lastActivity time.Time
}

type Manager struct {
	mu                sync.RWMutex
	calls             map[string]*entry
	build             Builder
	inactivityTimeout time.Duration
	now               func() time.Time
	onExpire          func(Info)
}

func NewManager(build Builder, inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 10 * time.Minute
	}
	return &Manager{
		calls:             make(map[string]*entry),
		build:             build,
		inactivityTimeout: inactivityTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) SetExpireHook(hook func(Info)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create() (*Call, error) {
	id := uuid.NewString()
	hub := NewHub()
	ctrl, cleanup, err := m.build(id, hub)
	if err != nil {
		hub.Close()
		return nil, err
	}
	now := m.now()
	c := &Call{ID: id, Controller: ctrl, Hub: hub, CreatedAt: now, cleanup: cleanup}

	m.mu.Lock()
	m.calls[id] = &entry{call: c, lastActivity: now}
	m.mu.Unlock()
	return c, nil
}

func (m *Manager) Get(id string) (*Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.calls[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.call, nil
}

// Touch records caller activity and returns the call.
func (m *Manager) Touch(id string) (*Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.calls[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.lastActivity = m.now()
	return e.call, nil
}

func (m *Manager) Info(id string) (Info, error) {
	m.mu.RLock()
	e, ok := m.calls[id]
	var last time.Time
	if ok {
		last = e.lastActivity
	}
	m.mu.RUnlock()
	if !ok {
		return Info{}, ErrNotFound
	}
	return m.info(e.call, last), nil
}

// Remove closes the call and drops it from the registry.
func (m *Manager) Remove(id string) (Info, error) {
	m.mu.Lock()
	e, ok := m.calls[id]
	if ok {
		delete(m.calls, id)
	}
	m.mu.Unlock()
	if !ok {
		return Info{}, ErrNotFound
	}
	return m.shutdown(e), nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// CloseAll shuts every call down.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*entry, 0, len(m.calls))
	for id, e := range m.calls {
		all = append(all, e)
		delete(m.calls, id)
	}
	m.mu.Unlock()
	for _, e := range all {
		m.shutdown(e)
	}
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := m.now()
	var expired []*entry

	m.mu.Lock()
	for id, e := range m.calls {
		if now.Sub(e.lastActivity) < m.inactivityTimeout {
			continue
		}
		expired = append(expired, e)
		delete(m.calls, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	for _, e := range expired {
		info := m.shutdown(e)
		if hook != nil {
			hook(info)
		}
	}
}

func (m *Manager) shutdown(e *entry) Info {
	c := e.call
	c.Controller.Close()
	if c.cleanup != nil {
		c.cleanup()
	}
	c.Hub.Close()
	return m.info(c, e.lastActivity)
}

func (m *Manager) info(c *Call, last time.Time) Info {
	return Info{
		CallID:          c.ID,
		CreatedAt:       c.CreatedAt,
		LastActivityAt:  last,
		InactivityTTLMS: m.inactivityTimeout.Milliseconds(),
		Session:         c.Controller.Snapshot(),
	}
}

// EventPublisher converts controller events into wire messages on hub.
func EventPublisher(callID string, hub *Hub) func(ivr.Event) {
	return func(ev ivr.Event) {
		switch ev.Type {
		case ivr.EventMessage:
			hub.Publish(protocol.NewTranscriptMessage(callID, ev.Message))
		case ivr.EventState:
			hub.Publish(protocol.CallState{Type: protocol.TypeCallState, CallID: callID, Session: ev.Session})
		}
	}
}
