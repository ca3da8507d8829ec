package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/Dhoini/mailbox-registry/internal/domain"
	"github.com/Dhoini/mailbox-registry/internal/store"
	"github.com/Dhoini/mailbox-registry/internal/store/memory"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepos(t *testing.T) (*CustomerDocumentRepository, *SubscriptionDocumentRepository) {
	t.Helper()
	s := memory.New()
	log := logger.NewNop()
	customers := NewCustomerRepository(s, log)
	require.NoError(t, customers.EnsureIndexes(context.Background()))
	return customers, NewSubscriptionRepository(s, log)
}

func customerInput(name, mailbox string) domain.CustomerInput {
	return domain.CustomerInput{
		FirstName: name,
		LastName:  "Rossi",
		Phone:     "0471 000000",
		Email:     "mail@example.com",
		Mailbox:   mailbox,
	}
}

func strPtr(s string) *string { return &s }

func TestCustomerCreateAndGet(t *testing.T) {
	ctx := context.Background()
	customers, _ := newRepos(t)

	id, err := customers.Create(ctx, customerInput("Anna", "12"))
	require.NoError(t, err)

	c, err := customers.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, c.ID)
	assert.Equal(t, "Anna", c.FirstName)
	assert.Equal(t, "12", c.Mailbox)
	assert.NotNil(t, c.Subscriptions)
	assert.Empty(t, c.Subscriptions)
	assert.False(t, c.CreatedAt.IsZero())

	_, err = customers.GetByID(ctx, "bad")
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)

	_, err = customers.GetByID(ctx, "65f000000000000000000000")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "customer", nf.Entity)
}

func TestCustomerCreateDuplicateMailbox(t *testing.T) {
	ctx := context.Background()
	customers, _ := newRepos(t)

	_, err := customers.Create(ctx, customerInput("Anna", "12"))
	require.NoError(t, err)

	_, err = customers.Create(ctx, customerInput("Bruno", "12"))
	var dup *domain.DuplicateMailboxError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "12", dup.Mailbox)
}

func TestCustomerCreateConcurrentSameMailbox(t *testing.T) {
	ctx := context.Background()
	customers, _ := newRepos(t)

	const workers = 20
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := customers.Create(ctx, customerInput(fmt.Sprintf("C%d", i), "7"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, domain.ErrDuplicateMailbox):
				duplicates++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, duplicates)
	assert.Zero(t, customers.locks.size())

	all, err := customers.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCustomerListPagination(t *testing.T) {
	ctx := context.Background()
	customers, _ := newRepos(t)

	names := []string{"Elena", "Carla", "Anna", "Dario", "Bruno", "Fabio", "Giada"}
	for i, n := range names {
		_, err := customers.Create(ctx, customerInput(n, fmt.Sprint(i)))
		require.NoError(t, err)
	}

	cases := []struct {
		page, size int64
		want       []string
	}{
		{1, 3, []string{"Anna", "Bruno", "Carla"}},
		{2, 3, []string{"Dario", "Elena", "Fabio"}},
		{3, 3, []string{"Giada"}},
		{4, 3, []string{}},
		{4611686018427387905, 4, []string{}},
		{math.MaxInt64, math.MaxInt64, []string{}},
		{1, 50, []string{"Anna", "Bruno", "Carla", "Dario", "Elena", "Fabio", "Giada"}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("page=%d size=%d", tc.page, tc.size), func(t *testing.T) {
			res, err := customers.List(ctx, domain.Page{Number: tc.page, Size: tc.size})
			require.NoError(t, err)
			assert.Equal(t, int64(len(names)), res.Total)

			got := make([]string, 0, len(res.Customers))
			for _, c := range res.Customers {
				got = append(got, c.FirstName)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCustomerUpdate(t *testing.T) {
	ctx := context.Background()
	customers, _ := newRepos(t)

	id, err := customers.Create(ctx, customerInput("Anna", "1"))
	require.NoError(t, err)
	_, err = customers.Create(ctx, customerInput("Bruno", "2"))
	require.NoError(t, err)

	updated, err := customers.Update(ctx, id, domain.CustomerPatch{Phone: strPtr("333"), CardPoints: strPtr("10")})
	require.NoError(t, err)
	assert.Equal(t, "Anna", updated.FirstName)
	assert.Equal(t, "333", updated.Phone)
	assert.Equal(t, "10", updated.CardPoints)
	assert.Equal(t, "1", updated.Mailbox)

	_, err = customers.Update(ctx, id, domain.CustomerPatch{Mailbox: strPtr("2")})
	assert.ErrorIs(t, err, domain.ErrDuplicateMailbox)

	// свой же номер ящика не конфликт
	_, err = customers.Update(ctx, id, domain.CustomerPatch{Mailbox: strPtr("1")})
	assert.NoError(t, err)

	_, err = customers.Update(ctx, "65f000000000000000000000", domain.CustomerPatch{Phone: strPtr("1")})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = customers.Update(ctx, "xyz", domain.CustomerPatch{Phone: strPtr("1")})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}

func TestAppendSubscriptionCopy(t *testing.T) {
	ctx := context.Background()
	customers, subs := newRepos(t)

	id, err := customers.Create(ctx, customerInput("Anna", "1"))
	require.NoError(t, err)

	first, err := subs.Create(ctx, domain.SubscriptionInput{Serial: "2024", Note: "annuale"})
	require.NoError(t, err)
	second, err := subs.Create(ctx, domain.SubscriptionInput{Serial: "2025"})
	require.NoError(t, err)

	require.NoError(t, customers.AppendSubscriptionCopy(ctx, id, first.Copy()))
	require.NoError(t, customers.AppendSubscriptionCopy(ctx, id, second.Copy()))
	// повтор не дублирует копию
	require.NoError(t, customers.AppendSubscriptionCopy(ctx, id, first.Copy()))

	c, err := customers.GetByID(ctx, id)
	require.NoError(t, err)
	require.Len(t, c.Subscriptions, 2)
	assert.True(t, c.Subscriptions[0].Matches(first))
	assert.True(t, c.Subscriptions[1].Matches(second))

	err = customers.AppendSubscriptionCopy(ctx, "65f000000000000000000000", first.Copy())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = customers.AppendSubscriptionCopy(ctx, id, domain.SubscriptionCopy{ID: "nope", Serial: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}

func TestDeleteCustomerKeepsSubscriptions(t *testing.T) {
	ctx := context.Background()
	customers, subs := newRepos(t)

	id, err := customers.Create(ctx, customerInput("Anna", "1"))
	require.NoError(t, err)
	sub, err := subs.Create(ctx, domain.SubscriptionInput{Serial: "2024"})
	require.NoError(t, err)
	require.NoError(t, customers.AppendSubscriptionCopy(ctx, id, sub.Copy()))

	require.NoError(t, customers.Delete(ctx, id))
	assert.ErrorIs(t, customers.Delete(ctx, id), domain.ErrNotFound)
	assert.ErrorIs(t, customers.Delete(ctx, "bad"), domain.ErrInvalidIdentifier)

	all, err := subs.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Subscription{sub}, all)

	// ящик снова свободен
	_, err = customers.Create(ctx, customerInput("Bruno", "1"))
	assert.NoError(t, err)
}

func TestClearAllKeepsEmbeddedCopies(t *testing.T) {
	ctx := context.Background()
	customers, subs := newRepos(t)

	id, err := customers.Create(ctx, customerInput("Anna", "1"))
	require.NoError(t, err)
	for _, serie := range []string{"a", "b", "c"} {
		sub, err := subs.Create(ctx, domain.SubscriptionInput{Serial: serie})
		require.NoError(t, err)
		require.NoError(t, customers.AppendSubscriptionCopy(ctx, id, sub.Copy()))
	}

	n, err := subs.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = subs.ClearAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	c, err := customers.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Len(t, c.Subscriptions, 3)
}

func TestSubscriptionDelete(t *testing.T) {
	ctx := context.Background()
	_, subs := newRepos(t)

	sub, err := subs.Create(ctx, domain.SubscriptionInput{Serial: "2024"})
	require.NoError(t, err)

	require.NoError(t, subs.Delete(ctx, sub.ID))
	assert.ErrorIs(t, subs.Delete(ctx, sub.ID), domain.ErrNotFound)
}

func TestMapStoreError(t *testing.T) {
	assert.NoError(t, mapStoreError(nil, entityCustomer, "1"))
	assert.ErrorIs(t, mapStoreError(store.ErrNotFound, entityCustomer, "1"), domain.ErrNotFound)
	assert.ErrorIs(t, mapStoreError(store.ErrInvalidID, entityCustomer, "1"), domain.ErrInvalidIdentifier)
	assert.ErrorIs(t, mapStoreError(store.Unavailable("find", errors.New("boom")), entityCustomer, ""), domain.ErrStoreUnavailable)
	assert.ErrorIs(t, mapStoreError(context.Canceled, entityCustomer, ""), context.Canceled)
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())
	unlockA()
	unlockB()
	assert.Zero(t, k.size())
}
