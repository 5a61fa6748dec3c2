// Package cart holds the signed-in user's cart and the operations that change it.
package cart

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-storefront-client/api"
	"github.com/jrsteele09/go-storefront-client/httpclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Messages recorded when the API gives no reason of its own
const (
	MsgFetchFailed  = "Failed to load cart"
	MsgAddFailed    = "Failed to add to cart"
	MsgUpdateFailed = "Failed to update quantity"
	MsgRemoveFailed = "Failed to remove from cart"
	MsgClearFailed  = "Failed to clear cart"
)

// Client is the subset of the API client the cart needs
type Client interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, in, out any) error
	Delete(ctx context.Context, path string, out any) error
}

type Module struct {
	client Client
	logger zerolog.Logger

	lock      sync.RWMutex
	items     []api.CartItem
	pending   int
	errMsg    string
	lastAdded *api.CartItem
}

type Option func(*Module)

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Module) {
		m.logger = logger
	}
}

func New(client Client, opts ...Option) *Module {
	m := &Module{
		client: client,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FetchItems reloads the cart. On failure the error is recorded and returned
// together with an empty list; the previously loaded items are kept.
func (m *Module) FetchItems(ctx context.Context) ([]api.CartItem, error) {
	done := m.begin()
	var items []api.CartItem
	err := m.client.Get(ctx, api.EndpointCart, &items)
	done("fetch", err, MsgFetchFailed)
	if err != nil {
		return []api.CartItem{}, err
	}

	m.lock.Lock()
	m.items = items
	m.lock.Unlock()
	return cloneItems(items), nil
}

// Add puts quantity tickets of a schedule in the cart and reloads it. Adding a
// schedule already in the cart sets its quantity.
func (m *Module) Add(ctx context.Context, scheduleID int64, quantity int) (*api.CartItem, error) {
	req := api.AddToCartRequest{PerformanceScheduleID: scheduleID, Quantity: quantity}
	if err := api.Validate(req); err != nil {
		m.fail("add", err, MsgAddFailed)
		return nil, err
	}

	done := m.begin()
	var item api.CartItem
	err := m.client.Post(ctx, api.EndpointCartAdd, req, &item)
	done("add", err, MsgAddFailed)
	if err != nil {
		return nil, err
	}

	m.lock.Lock()
	m.lastAdded = &item
	m.lock.Unlock()

	_, _ = m.FetchItems(ctx)
	added := item
	return &added, nil
}

func (m *Module) UpdateQuantity(ctx context.Context, itemID int64, quantity int) error {
	req := api.UpdateQuantityRequest{Quantity: quantity}
	if err := api.Validate(req); err != nil {
		m.fail("update", err, MsgUpdateFailed)
		return err
	}

	done := m.begin()
	err := m.client.Post(ctx, api.CartUpdatePath(itemID), req, nil)
	done("update", err, MsgUpdateFailed)
	if err != nil {
		return err
	}
	_, _ = m.FetchItems(ctx)
	return nil
}

func (m *Module) Remove(ctx context.Context, itemID int64) error {
	done := m.begin()
	err := m.client.Delete(ctx, api.CartRemovePath(itemID), nil)
	done("remove", err, MsgRemoveFailed)
	if err != nil {
		return err
	}
	_, _ = m.FetchItems(ctx)
	return nil
}

func (m *Module) Clear(ctx context.Context) error {
	done := m.begin()
	err := m.client.Post(ctx, api.EndpointCartClear, nil, nil)
	done("clear", err, MsgClearFailed)
	if err != nil {
		return err
	}

	m.lock.Lock()
	m.items = nil
	m.lock.Unlock()
	return nil
}

// Reset forgets all cart state, e.g. when the session ends
func (m *Module) Reset(context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.items = nil
	m.errMsg = ""
	m.lastAdded = nil
	return nil
}

func (m *Module) Items() []api.CartItem {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return cloneItems(m.items)
}

// Count is the number of tickets in the cart
func (m *Module) Count() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	count := 0
	for _, item := range m.items {
		count += item.Quantity
	}
	return count
}

// Total is the sum of price times quantity over the cart
func (m *Module) Total() api.Amount {
	m.lock.RLock()
	defer m.lock.RUnlock()
	var total api.Amount
	for _, item := range m.items {
		total += item.PerformanceSchedule.Price * api.Amount(item.Quantity)
	}
	return total
}

func (m *Module) Loading() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.pending > 0
}

// Error is the message of the last failed operation, "" after a success
func (m *Module) Error() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.errMsg
}

func (m *Module) LastAdded() *api.CartItem {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.lastAdded == nil {
		return nil
	}
	item := *m.lastAdded
	return &item
}

// begin marks an operation in flight and clears the last error. The returned
// func ends it and records err, if any.
func (m *Module) begin() func(op string, err error, fallback string) {
	m.lock.Lock()
	m.pending++
	m.errMsg = ""
	m.lock.Unlock()

	return func(op string, err error, fallback string) {
		m.lock.Lock()
		m.pending--
		m.lock.Unlock()
		if err != nil {
			m.fail(op, err, fallback)
		}
	}
}

func (m *Module) fail(op string, err error, fallback string) {
	msg := httpclient.Message(err, fallback)
	m.lock.Lock()
	m.errMsg = msg
	m.lock.Unlock()
	m.logger.Warn().Err(err).Str("op", op).Msg(msg)
}

func cloneItems(items []api.CartItem) []api.CartItem {
	if items == nil {
		return []api.CartItem{}
	}
	return append([]api.CartItem(nil), items...)
}
