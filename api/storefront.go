package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Amount is a monetary value. The API serialises decimals as strings ("1500.00")
// but numbers are accepted too.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*a = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("api.Amount %q: %w", s, err)
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatFloat(float64(a), 'f', 2, 64))
}

// PerformanceSchedule is a single show of a performance in a hall
type PerformanceSchedule struct {
	ID              int64     `json:"id"`
	PerformanceName string    `json:"performance_name"`
	TheaterName     string    `json:"theater_name"`
	HallNumber      int       `json:"hall_number"`
	DateTime        time.Time `json:"date_time"`
	AvailableSeats  int       `json:"available_seats"`
	Price           Amount    `json:"price"`
}

// CartItem is a number of tickets for one schedule in the user's cart
type CartItem struct {
	ID                  int64               `json:"id"`
	PerformanceSchedule PerformanceSchedule `json:"performance_schedule"`
	Quantity            int                 `json:"quantity"`
	AddedAt             time.Time           `json:"added_at"`
	TotalPrice          Amount              `json:"total_price"`
}

type AddToCartRequest struct {
	PerformanceScheduleID int64 `json:"performance_schedule_id" validate:"required,gt=0"`
	Quantity              int   `json:"quantity" validate:"required,gt=0"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderCancelled OrderStatus = "cancelled"
	OrderCompleted OrderStatus = "completed"
)

type OrderItem struct {
	ID                  int64     `json:"id"`
	PerformanceName     string    `json:"performance_name"`
	PerformanceSchedule int64     `json:"performance_schedule"`
	TheaterName         string    `json:"theater_name"`
	DateTime            time.Time `json:"date_time"`
	Quantity            int       `json:"quantity"`
	PricePerUnit        Amount    `json:"price_per_unit"`
	Subtotal            Amount    `json:"subtotal"`
}

type Order struct {
	ID            int64       `json:"id"`
	Status        OrderStatus `json:"status"`
	StatusDisplay string      `json:"status_display"`
	TotalAmount   Amount      `json:"total_amount"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	CustomerPhone string      `json:"customer_phone"`
	PaymentMethod string      `json:"payment_method"`
	PaymentID     string      `json:"payment_id"`
	Items         []OrderItem `json:"items"`
}

// OrderForm is the checkout form posted to orders/create/. The order is built
// server-side from the current cart.
type OrderForm struct {
	CustomerName    string `json:"customer_name" validate:"required"`
	CustomerEmail   string `json:"customer_email" validate:"required,email"`
	CustomerPhone   string `json:"customer_phone" validate:"required"`
	PaymentMethod   string `json:"payment_method" validate:"required"`
	DeliveryAddress string `json:"delivery_address,omitempty"`
}
