package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/mailbox-registry/internal/domain"
	"github.com/Dhoini/mailbox-registry/internal/store"
)

const (
	entityCustomer     = "customer"
	entitySubscription = "subscription"
)

// mapStoreError переводит ошибки хранилища в доменные
func mapStoreError(err error, entity, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return domain.NewNotFoundError(entity, id)
	case errors.Is(err, store.ErrInvalidID):
		return fmt.Errorf("%w: %s", domain.ErrInvalidIdentifier, id)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
}
