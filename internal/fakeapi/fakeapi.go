// Package fakeapi is an in-process stand-in for the storefront REST API. It
// issues real HS256 JWTs, keeps accounts, carts and orders in memory, and lets
// tests expire or revoke tokens and observe every call made against it.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-storefront-client/api"
	"github.com/jrsteele09/go-storefront-client/internal/utils"
)

var signingKey = []byte("fakeapi-signing-key")

// Call is one request received by the server
type Call struct {
	Method        string
	Path          string
	Authorization string
}

type account struct {
	password string
	profile  api.UserProfile
}

type Server struct {
	*httptest.Server

	// RefreshCalls counts every call to token/refresh/, successful or not
	RefreshCalls atomic.Int32
	// Unauthorized counts 401s served by bearer-protected endpoints
	Unauthorized atomic.Int32

	lock        sync.Mutex
	accessTTL   time.Duration
	rotate      bool
	failProfile bool
	refreshHook func()
	accounts    map[string]*account
	access      map[string]string // access token -> username
	refresh     map[string]string // refresh token -> username
	schedules   map[int64]*api.PerformanceSchedule
	carts       map[string][]*api.CartItem
	orders      map[string][]*api.Order
	nextID      int64
	calls       []Call
}

// New starts a server that is closed when the test ends
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		accessTTL: 5 * time.Minute,
		accounts:  make(map[string]*account),
		access:    make(map[string]string),
		refresh:   make(map[string]string),
		schedules: make(map[int64]*api.PerformanceSchedule),
		carts:     make(map[string][]*api.CartItem),
		orders:    make(map[string][]*api.Order),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token/{$}", s.handleToken)
	mux.HandleFunc("POST /api/token/refresh/{$}", s.handleRefresh)
	mux.HandleFunc("POST /api/register/{$}", s.handleRegister)
	mux.HandleFunc("GET /api/user/{$}", s.authorized(s.handleGetUser))
	mux.HandleFunc("PUT /api/user/{$}", s.authorized(s.handlePutUser))
	mux.HandleFunc("GET /api/cart/{$}", s.authorized(s.handleCartList))
	mux.HandleFunc("POST /api/cart/add/{$}", s.authorized(s.handleCartAdd))
	mux.HandleFunc("POST /api/cart/update/{id}/{$}", s.authorized(s.handleCartUpdate))
	mux.HandleFunc("DELETE /api/cart/remove/{id}/{$}", s.authorized(s.handleCartRemove))
	mux.HandleFunc("POST /api/cart/clear/{$}", s.authorized(s.handleCartClear))
	mux.HandleFunc("GET /api/orders/{$}", s.authorized(s.handleOrderList))
	mux.HandleFunc("POST /api/orders/create/{$}", s.authorized(s.handleOrderCreate))
	mux.HandleFunc("GET /api/orders/{id}/{$}", s.authorized(s.handleOrderDetail))
	mux.HandleFunc("POST /api/orders/{id}/cancel/{$}", s.authorized(s.handleOrderCancel))

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the API root to configure clients with
func (s *Server) BaseURL() string {
	return s.URL + "/api/"
}

// SetAccessTTL sets the exp claim of access tokens issued from now on
func (s *Server) SetAccessTTL(ttl time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.accessTTL = ttl
}

// SetRotateRefresh makes token/refresh/ issue a new refresh token and revoke the old one
func (s *Server) SetRotateRefresh(rotate bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rotate = rotate
}

// SetFailProfile makes user/ answer 500
func (s *Server) SetFailProfile(fail bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failProfile = fail
}

// SetRefreshHook runs hook inside every token/refresh/ call before it is answered
func (s *Server) SetRefreshHook(hook func()) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refreshHook = hook
}

func (s *Server) AddUser(username, email, password string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.addUserLocked(username, email, password)
}

func (s *Server) AddSchedule(schedule api.PerformanceSchedule) {
	s.lock.Lock()
	defer s.lock.Unlock()
	sc := schedule
	s.schedules[sc.ID] = &sc
}

// IssueTokens mints a token pair for an existing user without a login call
func (s *Server) IssueTokens(username string) (access, refresh string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.issueAccessLocked(username), s.issueRefreshLocked(username)
}

// ExpireAccess makes every access token issued so far unacceptable
func (s *Server) ExpireAccess() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.access = make(map[string]string)
}

// RevokeRefresh makes every refresh token issued so far unacceptable
func (s *Server) RevokeRefresh() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refresh = make(map[string]string)
}

// SetOrderStatus changes an order server-side, e.g. to completed
func (s *Server) SetOrderStatus(orderID int64, status api.OrderStatus) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, orders := range s.orders {
		for _, o := range orders {
			if o.ID == orderID {
				o.Status = status
				o.StatusDisplay = displayStatus(status)
			}
		}
	}
}

// Calls returns the requests received so far
func (s *Server) Calls() []Call {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the requests received for one path, e.g. "/api/cart/"
func (s *Server) CallsTo(path string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.lock.Lock()
		s.calls = append(s.calls, Call{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
		})
		s.lock.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorized(next func(w http.ResponseWriter, r *http.Request, username string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.Unauthorized.Add(1)
			writeJSON(w, http.StatusUnauthorized, api.ErrorBody{Detail: "Authentication credentials were not provided."})
			return
		}
		s.lock.Lock()
		username, ok := s.access[strings.TrimPrefix(header, "Bearer ")]
		s.lock.Unlock()
		if !ok {
			s.Unauthorized.Add(1)
			writeJSON(w, http.StatusUnauthorized, api.ErrorBody{
				Detail: "Given token not valid for any token type",
				Code:   "token_not_valid",
			})
			return
		}
		next(w, r, username)
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var creds api.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	acc, ok := s.accounts[creds.Username]
	if !ok || acc.password != creds.Password {
		writeJSON(w, http.StatusUnauthorized, api.ErrorBody{Detail: "No active account found with the given credentials"})
		return
	}
	writeJSON(w, http.StatusOK, api.TokenPair{
		Access:  s.issueAccessLocked(creds.Username),
		Refresh: utils.Ptr(s.issueRefreshLocked(creds.Username)),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.RefreshCalls.Add(1)
	s.lock.Lock()
	hook := s.refreshHook
	s.lock.Unlock()
	if hook != nil {
		hook()
	}

	var req api.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	username, ok := s.refresh[req.Refresh]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, api.ErrorBody{Detail: "Token is invalid or expired", Code: "token_not_valid"})
		return
	}
	pair := api.TokenPair{Access: s.issueAccessLocked(username)}
	if s.rotate {
		delete(s.refresh, req.Refresh)
		pair.Refresh = utils.Ptr(s.issueRefreshLocked(username))
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg api.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if reg.Username == "" || reg.Password == "" || reg.Email == "" {
		writeError(w, http.StatusBadRequest, "All fields (username, email, password) are required")
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, exists := s.accounts[reg.Username]; exists {
		writeError(w, http.StatusBadRequest, "Username already exists")
		return
	}
	s.addUserLocked(reg.Username, reg.Email, reg.Password)
	writeJSON(w, http.StatusCreated, api.TokenPair{
		Access:  s.issueAccessLocked(reg.Username),
		Refresh: utils.Ptr(s.issueRefreshLocked(reg.Username)),
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, _ *http.Request, username string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.failProfile {
		writeError(w, http.StatusInternalServerError, "profile unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.accounts[username].profile)
}

func (s *Server) handlePutUser(w http.ResponseWriter, r *http.Request, username string) {
	var update api.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.failProfile {
		writeError(w, http.StatusInternalServerError, "profile unavailable")
		return
	}
	acc := s.accounts[username]
	if update.Email != "" {
		acc.profile.Email = update.Email
	}
	if update.Username != "" && update.Username != username {
		if _, taken := s.accounts[update.Username]; taken {
			writeError(w, http.StatusBadRequest, "Username already exists")
			return
		}
		acc.profile.Username = update.Username
		s.accounts[update.Username] = acc
		delete(s.accounts, username)
		for token, owner := range s.access {
			if owner == username {
				s.access[token] = update.Username
			}
		}
		for token, owner := range s.refresh {
			if owner == username {
				s.refresh[token] = update.Username
			}
		}
	}
	writeJSON(w, http.StatusOK, acc.profile)
}

func (s *Server) handleCartList(w http.ResponseWriter, _ *http.Request, username string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	items := make([]api.CartItem, 0, len(s.carts[username]))
	for _, item := range s.carts[username] {
		items = append(items, *item)
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCartAdd(w http.ResponseWriter, r *http.Request, username string) {
	var req api.AddToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.PerformanceScheduleID == 0 {
		writeError(w, http.StatusBadRequest, "performance schedule id is required")
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	schedule, ok := s.schedules[req.PerformanceScheduleID]
	if !ok {
		writeError(w, http.StatusNotFound, "performance schedule not found")
		return
	}
	if schedule.AvailableSeats < req.Quantity {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("not enough seats: %d available, %d requested", schedule.AvailableSeats, req.Quantity))
		return
	}
	for _, item := range s.carts[username] {
		if item.PerformanceSchedule.ID == req.PerformanceScheduleID {
			item.Quantity = req.Quantity
			item.TotalPrice = schedule.Price * api.Amount(req.Quantity)
			writeJSON(w, http.StatusOK, item)
			return
		}
	}
	s.nextID++
	item := &api.CartItem{
		ID:                  s.nextID,
		PerformanceSchedule: *schedule,
		Quantity:            req.Quantity,
		AddedAt:             time.Now().UTC(),
		TotalPrice:          schedule.Price * api.Amount(req.Quantity),
	}
	s.carts[username] = append(s.carts[username], item)
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleCartUpdate(w http.ResponseWriter, r *http.Request, username string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "cart item not found")
		return
	}
	var req api.UpdateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, item := range s.carts[username] {
		if item.ID != id {
			continue
		}
		extra := req.Quantity - item.Quantity
		if extra > 0 && s.schedules[item.PerformanceSchedule.ID].AvailableSeats < extra {
			writeError(w, http.StatusBadRequest, "not enough seats")
			return
		}
		item.Quantity = req.Quantity
		item.TotalPrice = item.PerformanceSchedule.Price * api.Amount(req.Quantity)
		writeJSON(w, http.StatusOK, item)
		return
	}
	writeError(w, http.StatusNotFound, "cart item not found")
}

func (s *Server) handleCartRemove(w http.ResponseWriter, r *http.Request, username string) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	s.lock.Lock()
	defer s.lock.Unlock()
	items := s.carts[username]
	for i, item := range items {
		if item.ID == id {
			s.carts[username] = append(items[:i], items[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "cart item not found")
}

func (s *Server) handleCartClear(w http.ResponseWriter, _ *http.Request, username string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.carts, username)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOrderList(w http.ResponseWriter, _ *http.Request, username string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	orders := s.orders[username]
	out := make([]api.Order, 0, len(orders))
	// Newest first
	for i := len(orders) - 1; i >= 0; i-- {
		out = append(out, *orders[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOrderDetail(w http.ResponseWriter, r *http.Request, username string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	order := s.findOrderLocked(username, r.PathValue("id"))
	if order == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleOrderCreate(w http.ResponseWriter, r *http.Request, username string) {
	var form api.OrderForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if form.CustomerName == "" || form.CustomerEmail == "" || form.CustomerPhone == "" || form.PaymentMethod == "" {
		writeError(w, http.StatusBadRequest, "customer details are required")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	cart := s.carts[username]
	if len(cart) == 0 {
		writeError(w, http.StatusBadRequest, "cart is empty")
		return
	}

	now := time.Now().UTC()
	s.nextID++
	order := &api.Order{
		ID:            s.nextID,
		Status:        api.OrderPending,
		StatusDisplay: displayStatus(api.OrderPending),
		CreatedAt:     now,
		UpdatedAt:     now,
		CustomerName:  form.CustomerName,
		CustomerEmail: form.CustomerEmail,
		CustomerPhone: form.CustomerPhone,
		PaymentMethod: form.PaymentMethod,
		PaymentID:     uuid.NewString(),
	}
	for _, item := range cart {
		s.nextID++
		subtotal := item.PerformanceSchedule.Price * api.Amount(item.Quantity)
		order.Items = append(order.Items, api.OrderItem{
			ID:                  s.nextID,
			PerformanceName:     item.PerformanceSchedule.PerformanceName,
			PerformanceSchedule: item.PerformanceSchedule.ID,
			TheaterName:         item.PerformanceSchedule.TheaterName,
			DateTime:            item.PerformanceSchedule.DateTime,
			Quantity:            item.Quantity,
			PricePerUnit:        item.PerformanceSchedule.Price,
			Subtotal:            subtotal,
		})
		order.TotalAmount += subtotal
		if schedule, ok := s.schedules[item.PerformanceSchedule.ID]; ok {
			schedule.AvailableSeats -= item.Quantity
		}
	}
	s.orders[username] = append(s.orders[username], order)
	delete(s.carts, username)
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleOrderCancel(w http.ResponseWriter, r *http.Request, username string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	order := s.findOrderLocked(username, r.PathValue("id"))
	if order == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if order.Status == api.OrderCompleted {
		writeError(w, http.StatusBadRequest, "a completed order cannot be cancelled")
		return
	}
	if order.Status != api.OrderCancelled {
		for _, item := range order.Items {
			if schedule, ok := s.schedules[item.PerformanceSchedule]; ok {
				schedule.AvailableSeats += item.Quantity
			}
		}
	}
	order.Status = api.OrderCancelled
	order.StatusDisplay = displayStatus(api.OrderCancelled)
	order.UpdatedAt = time.Now().UTC()
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) findOrderLocked(username, rawID string) *api.Order {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil
	}
	for _, o := range s.orders[username] {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (s *Server) addUserLocked(username, email, password string) {
	s.accounts[username] = &account{
		password: password,
		profile: api.UserProfile{
			Username:         username,
			Email:            email,
			RegistrationDate: time.Now().UTC().Truncate(time.Second),
		},
	}
}

func (s *Server) issueAccessLocked(username string) string {
	token := mint(username, "access", s.accessTTL)
	s.access[token] = username
	return token
}

func (s *Server) issueRefreshLocked(username string) string {
	token := mint(username, "refresh", 24*time.Hour)
	s.refresh[token] = username
	return token
}

// mint signs a token shaped like the API's own: user_id, token_type, jti, iat and exp
func mint(username, tokenType string, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"token_type": tokenType,
		"user_id":    username,
		"jti":        uuid.NewString(),
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(fmt.Sprintf("fakeapi: sign token: %v", err))
	}
	return signed
}

func displayStatus(status api.OrderStatus) string {
	switch status {
	case api.OrderPending:
		return "Pending"
	case api.OrderConfirmed:
		return "Confirmed"
	case api.OrderCancelled:
		return "Cancelled"
	case api.OrderCompleted:
		return "Completed"
	}
	return string(status)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorBody{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
