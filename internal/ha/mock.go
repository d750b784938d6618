package ha

import (
	"fmt"
	"sync"
	"time"
)

// MockClient implements HAClient for testing
type MockClient struct {
	states       map[string]*State
	statesMu     sync.RWMutex
	subscribers  map[string][]subscriberEntry
	subsMu       sync.RWMutex
	nextSubID    int
	nextSubIDMu  sync.Mutex
	connected    bool
	connMu       sync.RWMutex
	serviceCalls []ServiceCall
	callsMu      sync.Mutex

	// HostCfg is returned by GetConfig; nil yields an empty config.
	HostCfg *HostConfig

	// ResolvedMedia maps media-source ids to resolved URLs.
	ResolvedMedia map[string]string

	// OnCallService, when set, runs after each recorded service call.
	// Tests use it to simulate host side effects (e.g. the TTS sink
	// receiving a URL).
	OnCallService func(call ServiceCall)
}

// ServiceCall records a service call for testing
type ServiceCall struct {
	Domain         string
	Service        string
	Data           map[string]interface{}
	TargetEntityID string
	Time           time.Time
}

// mockSubscription implements Subscription for MockClient
type mockSubscription struct {
	entityID string
	subID    int
	mock     *MockClient
}

func (s *mockSubscription) Unsubscribe() error {
	return s.mock.unsubscribe(s.entityID, s.subID)
}

// NewMockClient creates a new mock HA client
func NewMockClient() *MockClient {
	return &MockClient{
		states:        make(map[string]*State),
		subscribers:   make(map[string][]subscriberEntry),
		serviceCalls:  make([]ServiceCall, 0),
		ResolvedMedia: make(map[string]string),
	}
}

// Connect simulates connecting to Home Assistant
func (m *MockClient) Connect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.connected = true
	return nil
}

// Disconnect simulates disconnecting
func (m *MockClient) Disconnect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.connected = false

	m.subsMu.Lock()
	m.subscribers = make(map[string][]subscriberEntry)
	m.subsMu.Unlock()
	return nil
}

// IsConnected reports the simulated connection state
func (m *MockClient) IsConnected() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connected
}

// SetState sets an entity state and notifies subscribers
func (m *MockClient) SetState(entityID string, state *State) {
	m.statesMu.Lock()
	old := m.states[entityID]
	m.states[entityID] = state
	m.statesMu.Unlock()

	m.subsMu.RLock()
	entries := append([]subscriberEntry(nil), m.subscribers[entityID]...)
	m.subsMu.RUnlock()

	for _, entry := range entries {
		entry.handler(entityID, old, state)
	}
}

// GetState retrieves a previously set state
func (m *MockClient) GetState(entityID string) (*State, error) {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	state, ok := m.states[entityID]
	if !ok {
		return nil, fmt.Errorf("entity %s not found", entityID)
	}
	return state, nil
}

// GetConfig returns the configured host config
func (m *MockClient) GetConfig() (*HostConfig, error) {
	if m.HostCfg == nil {
		return &HostConfig{}, nil
	}
	return m.HostCfg, nil
}

// ResolveMediaSource resolves from the ResolvedMedia table
func (m *MockClient) ResolveMediaSource(mediaContentID string) (string, error) {
	url, ok := m.ResolvedMedia[mediaContentID]
	if !ok {
		return "", fmt.Errorf("cannot resolve media source %s", mediaContentID)
	}
	return url, nil
}

func (m *MockClient) recordCall(call ServiceCall) {
	m.callsMu.Lock()
	m.serviceCalls = append(m.serviceCalls, call)
	hook := m.OnCallService
	m.callsMu.Unlock()

	if hook != nil {
		hook(call)
	}
}

// CallService records the service call
func (m *MockClient) CallService(domain, service string, data map[string]interface{}) error {
	m.recordCall(ServiceCall{
		Domain:  domain,
		Service: service,
		Data:    data,
		Time:    time.Now(),
	})
	return nil
}

// CallServiceTarget records the targeted service call
func (m *MockClient) CallServiceTarget(domain, service string, data map[string]interface{}, targetEntityID string) error {
	m.recordCall(ServiceCall{
		Domain:         domain,
		Service:        service,
		Data:           data,
		TargetEntityID: targetEntityID,
		Time:           time.Now(),
	})
	return nil
}

// ServiceCalls returns a copy of all recorded calls
func (m *MockClient) ServiceCalls() []ServiceCall {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	return append([]ServiceCall(nil), m.serviceCalls...)
}

// CallsFor returns recorded calls matching domain and service
func (m *MockClient) CallsFor(domain, service string) []ServiceCall {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	var out []ServiceCall
	for _, call := range m.serviceCalls {
		if call.Domain == domain && call.Service == service {
			out = append(out, call)
		}
	}
	return out
}

// SubscribeStateChanges registers a handler for an entity
func (m *MockClient) SubscribeStateChanges(entityID string, handler StateChangeHandler) (Subscription, error) {
	m.nextSubIDMu.Lock()
	subID := m.nextSubID
	m.nextSubID++
	m.nextSubIDMu.Unlock()

	m.subsMu.Lock()
	m.subscribers[entityID] = append(m.subscribers[entityID], subscriberEntry{
		subID:   subID,
		handler: handler,
	})
	m.subsMu.Unlock()

	return &mockSubscription{entityID: entityID, subID: subID, mock: m}, nil
}

func (m *MockClient) unsubscribe(entityID string, subID int) error {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	subscribers, ok := m.subscribers[entityID]
	if !ok {
		return nil
	}
	for i, entry := range subscribers {
		if entry.subID == subID {
			m.subscribers[entityID] = append(subscribers[:i], subscribers[i+1:]...)
			break
		}
	}
	return nil
}

// SetInputBoolean records the underlying service call
func (m *MockClient) SetInputBoolean(name string, value bool) error {
	service := "turn_off"
	if value {
		service = "turn_on"
	}
	return m.CallService("input_boolean", service, map[string]interface{}{
		"entity_id": fmt.Sprintf("input_boolean.%s", name),
	})
}

// SetInputNumber records the underlying service call
func (m *MockClient) SetInputNumber(name string, value float64) error {
	return m.CallService("input_number", "set_value", map[string]interface{}{
		"entity_id": fmt.Sprintf("input_number.%s", name),
		"value":     value,
	})
}

// SetInputText records the underlying service call
func (m *MockClient) SetInputText(name string, value string) error {
	return m.CallService("input_text", "set_value", map[string]interface{}{
		"entity_id": fmt.Sprintf("input_text.%s", name),
		"value":     value,
	})
}
