package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation error")
	// ErrMissingContactInfo возвращается, если не заполнены имя или телефон покупателя.
	ErrMissingContactInfo = fmt.Errorf("%w: name and phone are required", ErrValidation)
	// ErrIncompleteAddress возвращается, если у адреса доставки нет улицы или города.
	// Ошибка мягкая: повторный запрос с подтверждением проходит.
	ErrIncompleteAddress = fmt.Errorf("%w: shipping address looks incomplete", ErrValidation)
	ErrDuplicateIdentity = errors.New("identity already exists")
	ErrAuthRequired      = errors.New("authentication required")
	ErrEmptyCart         = errors.New("cart is empty")
	// ErrPersistenceWrite означает, что изменение применено в памяти, но не записано в хранилище.
	ErrPersistenceWrite   = errors.New("persistence write failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrUserNotFound       = errors.New("user not found")
	ErrOrderNotFound      = errors.New("order not found")
	// ErrOrderLocked возвращается при попытке удалить отправленный или доставленный заказ.
	ErrOrderLocked      = errors.New("order can no longer be deleted")
	ErrInvalidStatus    = errors.New("invalid order status")
	ErrProductNotFound  = errors.New("product not found")
	ErrPaymentCancelled = errors.New("payment cancelled")
	// ErrCatalogDisabled возвращается, если адрес каталога не задан.
	ErrCatalogDisabled = errors.New("catalog is not configured")
)
