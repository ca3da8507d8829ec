package domain

import (
	"math"
	"strings"
	"time"
)

// Customer представляет собой арендатора почтового ящика.
// Subscriptions хранит денормализованные копии канонических абонементов.
type Customer struct {
	ID            string             `json:"_id"`
	FirstName     string             `json:"nome"`
	LastName      string             `json:"cognome"`
	Phone         string             `json:"tel"`
	Email         string             `json:"email"`
	Mailbox       string             `json:"nr_casella"`
	CardNumber    string             `json:"nr_tessera"`
	CardPoints    string             `json:"pti_tessera"`
	Subscriptions []SubscriptionCopy `json:"abbonamenti"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// CustomerInput представляет запрос на создание клиента
type CustomerInput struct {
	FirstName  string `json:"nome" validate:"required"`
	LastName   string `json:"cognome" validate:"required"`
	Phone      string `json:"tel" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Mailbox    string `json:"nr_casella" validate:"required"`
	CardNumber string `json:"nr_tessera"`
	CardPoints string `json:"pti_tessera"`
}

// Normalize обрезает пробелы по краям всех полей, как это делает PATCH
func (in CustomerInput) Normalize() CustomerInput {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)
	in.Mailbox = strings.TrimSpace(in.Mailbox)
	in.CardNumber = strings.TrimSpace(in.CardNumber)
	in.CardPoints = strings.TrimSpace(in.CardPoints)
	return in
}

// CustomerPatch частичное обновление клиента.
// nil-поля не изменяются.
type CustomerPatch struct {
	FirstName  *string
	LastName   *string
	Phone      *string
	Email      *string
	Mailbox    *string
	CardNumber *string
	CardPoints *string
}

// IsEmpty проверяет, что патч ничего не меняет
func (p CustomerPatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Phone == nil && p.Email == nil &&
		p.Mailbox == nil && p.CardNumber == nil && p.CardPoints == nil
}

// Page параметры постраничной выборки (Number начинается с 1)
type Page struct {
	Number int64
	Size   int64
}

// Offset возвращает количество пропускаемых записей.
// ok == false, если смещение не помещается в int64: такая страница заведомо пуста.
func (p Page) Offset() (offset int64, ok bool) {
	if p.Number < 1 || p.Size <= 0 {
		return 0, true
	}
	if p.Number-1 > math.MaxInt64/p.Size {
		return 0, false
	}
	return (p.Number - 1) * p.Size, true
}

// CustomerPage результат постраничной выборки
type CustomerPage struct {
	Total     int64
	Customers []Customer
}
