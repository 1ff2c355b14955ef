package shopify

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"
)

// WriteHook can fail a metafield write before the mock applies it.
// op is "create" or "update".
type WriteHook func(op string, in MetafieldInput) error

// MockShopifyService implements Service in memory. It enforces the platform's
// (namespace, key) uniqueness and keeps call counters for assertions.
type MockShopifyService struct {
	mu         sync.Mutex
	customers  map[string]*Customer
	metafields map[string][]Metafield
	owners     map[string]string
	nextID     int64
	now        func() time.Time
	writeHook  WriteHook
	readErr    error
	tagsErr    error

	creates   int
	updates   int
	tagWrites int
}

// CallCounts reports how many metafield creates, metafield updates and tag
// writes the mock has applied.
type CallCounts struct {
	Creates   int
	Updates   int
	TagWrites int
}

// NewMockShopifyService creates an empty mock store.
func NewMockShopifyService() *MockShopifyService {
	return &MockShopifyService{
		customers:  make(map[string]*Customer),
		metafields: make(map[string][]Metafield),
		owners:     make(map[string]string),
		nextID:     1000,
		now:        time.Now,
	}
}

// NewDemoShopifyService creates a mock with one demo customer, for running
// the server without shop credentials.
func NewDemoShopifyService() *MockShopifyService {
	m := NewMockShopifyService()
	m.AddCustomer("8570264879349", "vip, newsletter")
	return m
}

// AddCustomer registers a customer with the given tag string.
func (m *MockShopifyService) AddCustomer(id, tags string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[id] = &Customer{ID: id, Tags: tags}
}

// SeedMetafield stores a metafield as if it had been created earlier and returns its ID.
func (m *MockShopifyService) SeedMetafield(customerID string, in MetafieldInput) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(customerID, in).ID
}

// FailWrites installs a hook consulted before every metafield write.
func (m *MockShopifyService) FailWrites(hook WriteHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeHook = hook
}

// FailReads makes GetCustomer and ListMetafields return err.
func (m *MockShopifyService) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// FailTagWrites makes PutCustomerTags return err.
func (m *MockShopifyService) FailTagWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tagsErr = err
}

// Counts returns the applied write counters.
func (m *MockShopifyService) Counts() CallCounts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return CallCounts{Creates: m.creates, Updates: m.updates, TagWrites: m.tagWrites}
}

// Tags returns the customer's current tag string.
func (m *MockShopifyService) Tags(customerID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.customers[customerID]; ok {
		return c.Tags
	}
	return ""
}

func (m *MockShopifyService) GetCustomer(_ context.Context, customerID string) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	c, ok := m.customers[customerID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockShopifyService) PutCustomerTags(_ context.Context, customerID, tags string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tagsErr != nil {
		return m.tagsErr
	}
	c, ok := m.customers[customerID]
	if !ok {
		return ErrNotFound
	}
	c.Tags = tags
	m.tagWrites++
	return nil
}

func (m *MockShopifyService) ListMetafields(_ context.Context, customerID string) ([]Metafield, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	if _, ok := m.customers[customerID]; !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(m.metafields[customerID]), nil
}

func (m *MockShopifyService) CreateMetafield(_ context.Context, customerID string, in MetafieldInput) (*Metafield, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeHook != nil {
		if err := m.writeHook("create", in); err != nil {
			return nil, err
		}
	}
	if _, ok := m.customers[customerID]; !ok {
		return nil, ErrNotFound
	}
	for _, existing := range m.metafields[customerID] {
		if existing.Namespace == in.Namespace && existing.Key == in.Key {
			return nil, &UpstreamError{
				Kind:   UpstreamErrorKindInvalid,
				Status: 422,
				Detail: `{"key":["must be unique within this namespace on this resource"]}`,
				cause:  ErrInvalid,
			}
		}
	}
	mf := m.insertLocked(customerID, in)
	m.creates++
	return &mf, nil
}

func (m *MockShopifyService) UpdateMetafield(_ context.Context, metafieldID string, in MetafieldInput) (*Metafield, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeHook != nil {
		if err := m.writeHook("update", in); err != nil {
			return nil, err
		}
	}
	customerID, ok := m.owners[metafieldID]
	if !ok {
		return nil, ErrNotFound
	}
	list := m.metafields[customerID]
	for i := range list {
		if list[i].ID != metafieldID {
			continue
		}
		list[i].Value = in.Value
		list[i].Type = in.Type
		list[i].UpdatedAt = m.now()
		m.updates++
		mf := list[i]
		return &mf, nil
	}
	return nil, ErrNotFound
}

func (m *MockShopifyService) insertLocked(customerID string, in MetafieldInput) Metafield {
	m.nextID++
	mf := Metafield{
		ID:        strconv.FormatInt(m.nextID, 10),
		Namespace: in.Namespace,
		Key:       in.Key,
		Value:     in.Value,
		Type:      in.Type,
		UpdatedAt: m.now(),
	}
	m.metafields[customerID] = append(m.metafields[customerID], mf)
	m.owners[mf.ID] = customerID
	return mf
}

// Compile-time interface check
var _ Service = (*MockShopifyService)(nil)
