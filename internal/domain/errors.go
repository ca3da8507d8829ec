package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrInvalidIdentifier идентификатор имеет неверный формат
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrDuplicateMailbox ящик уже назначен другому клиенту
	ErrDuplicateMailbox = errors.New("mailbox already assigned")

	// ErrValidationFailed неверные входные данные
	ErrValidationFailed = errors.New("validation failed")

	// ErrStoreUnavailable хранилище недоступно
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrPartialFailure первая из двух связанных записей выполнена, вторая нет
	ErrPartialFailure = errors.New("partial failure")
)

// ValidationError представляет ошибку валидации
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors представляет набор ошибок валидации
type ValidationErrors []ValidationError

// Error реализует интерфейс error
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}

	if len(e) == 1 {
		return fmt.Sprintf("validation failed: %s - %s", e[0].Field, e[0].Message)
	}

	return fmt.Sprintf("validation failed: %d errors", len(e))
}

// Is сопоставляет с ErrValidationFailed
func (e ValidationErrors) Is(target error) bool {
	return target == ErrValidationFailed
}

// Add добавляет ошибку валидации
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// HasErrors проверяет наличие ошибок
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields возвращает список полей с ошибками
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}

// NotFoundError представляет ошибку "не найдено"
type NotFoundError struct {
	Entity string
	ID     string
}

// Error реализует интерфейс error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Is проверяет, является ли ошибка ошибкой типа "не найдено"
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError создает новую ошибку "не найдено"
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// DuplicateMailboxError конфликт уникальности номера ящика
type DuplicateMailboxError struct {
	Mailbox string
}

// Error реализует интерфейс error
func (e *DuplicateMailboxError) Error() string {
	return fmt.Sprintf("mailbox '%s' is already assigned to another customer", e.Mailbox)
}

// Is проверяет, является ли ошибка ошибкой дубликата
func (e *DuplicateMailboxError) Is(target error) bool {
	return target == ErrDuplicateMailbox
}

// NewDuplicateMailboxError создает новую ошибку дубликата ящика
func NewDuplicateMailboxError(mailbox string) *DuplicateMailboxError {
	return &DuplicateMailboxError{Mailbox: mailbox}
}

// PartialFailureError каноническая запись создана, но копия в клиенте не добавлена.
// Subscription содержит созданную (осиротевшую) каноническую запись.
type PartialFailureError struct {
	CustomerID   string
	Subscription Subscription
	OriginalErr  error
}

// Error реализует интерфейс error
func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("subscription %s created but not attached to customer %s: %v",
		e.Subscription.ID, e.CustomerID, e.OriginalErr)
}

// Is сопоставляет с ErrPartialFailure
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

// Unwrap возвращает оригинальную ошибку
func (e *PartialFailureError) Unwrap() error {
	return e.OriginalErr
}
