package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidTransaction is returned when a transaction fails validation.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Transaction represents a single payment event handed to the scoring
// engine by the producer. Timestamps are epoch milliseconds to match the
// ingestion wire format.
type Transaction struct {
	ID        string   `json:"id"`
	Timestamp int64    `json:"timestamp"`
	UserID    string   `json:"userId"`
	Amount    float64  `json:"amount"`
	Currency  string   `json:"currency"`
	Merchant  string   `json:"merchant"`
	Location  Location `json:"location"`
	Device    Device   `json:"device"`
}

// Location is where the transaction was observed.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	City    string  `json:"city"`
	Country string  `json:"country"`
}

// Device is the fingerprint of the device that initiated the transaction.
type Device struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	OS   string `json:"os"`
	IP   string `json:"ip"`
}

// Validate rejects malformed transactions before they reach the engine.
// The engine assumes well-formed input; callers must validate first.
func (t *Transaction) Validate() error {
	if t.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidTransaction)
	}
	if t.Amount <= 0 || math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return fmt.Errorf("%w: amount must be a positive finite number", ErrInvalidTransaction)
	}
	if math.IsNaN(t.Location.Lat) || math.IsInf(t.Location.Lat, 0) ||
		math.IsNaN(t.Location.Lng) || math.IsInf(t.Location.Lng, 0) {
		return fmt.Errorf("%w: location coordinates must be finite", ErrInvalidTransaction)
	}
	if t.Location.Lat < -90 || t.Location.Lat > 90 {
		return fmt.Errorf("%w: latitude out of range", ErrInvalidTransaction)
	}
	if t.Location.Lng < -180 || t.Location.Lng > 180 {
		return fmt.Errorf("%w: longitude out of range", ErrInvalidTransaction)
	}
	if t.Device.ID == "" {
		return fmt.Errorf("%w: device.id is required", ErrInvalidTransaction)
	}
	return nil
}

// Normalize fills in server-assigned fields left empty by the producer.
func (t *Transaction) Normalize(newID func() string) {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.Timestamp == 0 {
		t.Timestamp = time.Now().UnixMilli()
	}
}
