// Package events доменные события реестра.
package events

import (
	"context"
	"time"
)

// Type тип события
type Type string

const (
	CustomerCreated      Type = "customer.created"
	CustomerDeleted      Type = "customer.deleted"
	SubscriptionAttached Type = "subscription.attached"
	SubscriptionsCleared Type = "subscriptions.cleared"
	SubscriptionOrphaned Type = "subscription.orphaned"
)

// Event событие для внешних потребителей
type Event struct {
	Type           Type      `json:"type"`
	CustomerID     string    `json:"customerId,omitempty"`
	SubscriptionID string    `json:"subscriptionId,omitempty"`
	Mailbox        string    `json:"mailbox,omitempty"`
	Count          int64     `json:"count,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Key ключ партиционирования: события одного клиента идут в одну партицию
func (e Event) Key() string {
	switch {
	case e.CustomerID != "":
		return e.CustomerID
	case e.SubscriptionID != "":
		return e.SubscriptionID
	default:
		return string(e.Type)
	}
}

// Publisher публикует события
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop публикатор без брокера
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error { return nil }
