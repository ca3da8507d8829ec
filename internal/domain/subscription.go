package domain

// Subscription каноническая запись абонемента.
// Владельца не хранит: связь только через копию внутри клиента.
type Subscription struct {
	ID     string `json:"_id"`
	Serial string `json:"serie"`
	Note   string `json:"note,omitempty"`
}

// SubscriptionCopy копия абонемента, встроенная в документ клиента.
// ID совпадает с ID канонической записи.
type SubscriptionCopy struct {
	ID     string `json:"_id,omitempty"`
	Serial string `json:"serie"`
	Note   string `json:"note,omitempty"`
}

// SubscriptionInput представляет запрос на добавление абонемента клиенту
type SubscriptionInput struct {
	Serial string `json:"serie" validate:"required"`
	Note   string `json:"note"`
}

// Copy возвращает встраиваемую копию канонической записи
func (s Subscription) Copy() SubscriptionCopy {
	return SubscriptionCopy{ID: s.ID, Serial: s.Serial, Note: s.Note}
}

// Matches проверяет совпадение копии с канонической записью
func (c SubscriptionCopy) Matches(s Subscription) bool {
	return c.ID == s.ID && c.Serial == s.Serial && c.Note == s.Note
}
