// Package orders holds the signed-in user's orders and checkout.
package orders

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-storefront-client/api"
	"github.com/jrsteele09/go-storefront-client/httpclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	MsgFetchFailed  = "Failed to load orders"
	MsgDetailFailed = "Failed to load order"
	MsgCreateFailed = "Failed to create order"
	MsgCancelFailed = "Failed to cancel order"
)

type Client interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, in, out any) error
}

type Module struct {
	client Client
	logger zerolog.Logger

	lock    sync.RWMutex
	orders  []api.Order
	current *api.Order
	pending int
	errMsg  string
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

// Fetch reloads the order list, newest first as the API returns it. On failure
// the error is recorded and returned with an empty list.
func (m *Module) Fetch(ctx context.Context) ([]api.Order, error) {
	done := m.begin()
	var orders []api.Order
	err := m.client.Get(ctx, api.EndpointOrders, &orders)
	done("fetch", err, MsgFetchFailed)
	if err != nil {
		return []api.Order{}, err
	}

	m.lock.Lock()
	m.orders = orders
	m.lock.Unlock()
	return append([]api.Order{}, orders...), nil
}

// FetchDetail loads one order and makes it the current order
func (m *Module) FetchDetail(ctx context.Context, orderID int64) (*api.Order, error) {
	done := m.begin()
	var order api.Order
	err := m.client.Get(ctx, api.OrderPath(orderID), &order)
	done("detail", err, MsgDetailFailed)
	if err != nil {
		return nil, err
	}
	m.setCurrent(&order)
	return &order, nil
}

// Create places an order for the current cart contents
func (m *Module) Create(ctx context.Context, form api.OrderForm) (*api.Order, error) {
	if err := api.Validate(form); err != nil {
		m.fail("create", err, MsgCreateFailed)
		return nil, err
	}

	done := m.begin()
	var order api.Order
	err := m.client.Post(ctx, api.EndpointOrderCreate, form, &order)
	done("create", err, MsgCreateFailed)
	if err != nil {
		return nil, err
	}
	m.setCurrent(&order)
	return &order, nil
}

// Cancel cancels an order and reloads the list
func (m *Module) Cancel(ctx context.Context, orderID int64) (*api.Order, error) {
	done := m.begin()
	var order api.Order
	err := m.client.Post(ctx, api.OrderCancelPath(orderID), nil, &order)
	done("cancel", err, MsgCancelFailed)
	if err != nil {
		return nil, err
	}
	m.setCurrent(&order)
	_, _ = m.Fetch(ctx)
	return &order, nil
}

// Reset forgets all order state, e.g. when the session ends
func (m *Module) Reset(context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.orders = nil
	m.current = nil
	m.errMsg = ""
	return nil
}

func (m *Module) Orders() []api.Order {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return append([]api.Order{}, m.orders...)
}

func (m *Module) Current() *api.Order {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.current == nil {
		return nil
	}
	order := *m.current
	return &order
}

func (m *Module) Count() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.orders)
}

// ByStatus filters the loaded orders
func (m *Module) ByStatus(status api.OrderStatus) []api.Order {
	m.lock.RLock()
	defer m.lock.RUnlock()
	out := []api.Order{}
	for _, o := range m.orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

func (m *Module) Loading() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.pending > 0
}

func (m *Module) Error() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.errMsg
}

func (m *Module) setCurrent(order *api.Order) {
	o := *order
	m.lock.Lock()
	m.current = &o
	m.lock.Unlock()
}

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
