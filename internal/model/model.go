// Package model содержит доменные сущности витрины: позиции корзины, пользователей, заказы и товары.
package model

import "time"

// Role описывает роль пользователя.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Address описывает адрес доставки, принадлежащий пользователю.
type Address struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// UserRecord представляет учётную запись пользователя в коллекции users.
type UserRecord struct {
	ID                string    `json:"id"`
	Username          string    `json:"username,omitempty"`
	Email             string    `json:"email"`
	Password          string    `json:"password"`
	Role              Role      `json:"role"`
	Name              string    `json:"name"`
	Phone             string    `json:"phone,omitempty"`
	Addresses         []Address `json:"addresses,omitempty"`
	ShippingAddressID string    `json:"shippingAddressId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Identity возвращает проекцию записи для текущей сессии.
func (u UserRecord) Identity() SessionIdentity {
	username := u.Username
	if username == "" {
		username = u.Email
	}
	role := u.Role
	if role == "" {
		role = RoleUser
	}
	return SessionIdentity{
		ID:       u.ID,
		Username: username,
		Email:    u.Email,
		Role:     role,
		Name:     u.Name,
	}
}

// SessionIdentity описывает аутентифицированного пользователя текущей сессии.
type SessionIdentity struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	Name     string `json:"name,omitempty"`
}

// IsAdmin сообщает, обладает ли пользователь правами администратора.
func (s SessionIdentity) IsAdmin() bool {
	return s.Role == RoleAdmin
}
