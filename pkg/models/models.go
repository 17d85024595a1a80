// Package models holds the host domain entities registered against the FSM
// engine. Order is the demo entity used to exercise the engine end-to-end,
// grounded in the literal scenarios of §8: pending -> paid -> shipped, with
// a cancelled branch and a refunded terminal state.
package models

import (
	"time"

	"gorm.io/gorm"

	"apexfsm/internal/fsmhost"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

// Order is a GORM-backed entity whose Status column is governed by the FSM
// engine. It wraps fsmhost.GormEntity rather than re-implementing the
// Entity surface, the way the teacher's own models stayed thin wrappers
// around gorm.Model.
type Order struct {
	ID         uint           `json:"id" gorm:"primarykey"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`

	CustomerID string  `json:"customer_id" gorm:"index;not null"`
	Status     string  `json:"status" gorm:"index;not null;default:'pending'"`
	TotalCents int64   `json:"total_cents"`
	Currency   string  `json:"currency" gorm:"default:'usd'"`
	Notes      string  `json:"notes"`
}

func (Order) TableName() string { return "orders" }

// Entity adapts o to the engine's fsmhost.Entity surface, bound to db for
// the CAS persistence step.
func (o *Order) Entity(db *gorm.DB) fsmhost.Entity {
	return &fsmhost.GormEntity{
		DB:       db,
		Model:    o,
		Class:    "Order",
		KeyField: "ID",
	}
}
