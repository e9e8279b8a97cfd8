// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/mail"
	"strings"

	"github.com/mmeshcher/storefront/internal/model"
)

// NormalizeIdentifier приводит email или имя пользователя к виду для сравнения.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsValidEmail проверяет, что строка является одиночным адресом без отображаемого имени.
func IsValidEmail(s string) bool {
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && addr.Name == ""
}

// HasContactInfo проверяет, что имя и телефон получателя заполнены.
func HasContactInfo(name, phone string) bool {
	return strings.TrimSpace(name) != "" && strings.TrimSpace(phone) != ""
}

// IsAddressComplete проверяет, что у адреса указаны улица и город.
func IsAddressComplete(a model.Address) bool {
	return strings.TrimSpace(a.Street) != "" && strings.TrimSpace(a.City) != ""
}
