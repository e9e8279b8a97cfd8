// Package session реализует хранилище учётных записей и текущую сессию пользователя.
package session

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/validation"
)

// Options задаёт параметры хранилища сессии.
type Options struct {
	AdminEmail    string
	AdminPassword string
	// HashCost задаёт стоимость bcrypt. Ноль означает bcrypt.DefaultCost.
	HashCost int
}

// ProfileUpdate описывает изменения профиля пользователя. Пустое имя оставляет прежнее.
type ProfileUpdate struct {
	Name              string
	Phone             string
	Addresses         []model.Address
	ShippingAddressID string
}

// Store хранит не более одной аутентифицированной личности и управляет коллекцией users.
// mu защищает current, usersMu удерживается от чтения users до записи.
type Store struct {
	mu      sync.Mutex
	current *model.SessionIdentity
	usersMu sync.Mutex
	store   model.KVStore
	logger  *zap.Logger
	opts    Options
	now     func() time.Time
}

// NewStore создаёт хранилище сессии и восстанавливает текущую личность из хранилища.
func NewStore(ctx context.Context, store model.KVStore, logger *zap.Logger, opts Options) *Store {
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	opts.AdminEmail = validation.NormalizeIdentifier(opts.AdminEmail)

	s := &Store{
		store:  store,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
	s.Reload(ctx)
	return s
}

// Current возвращает текущую личность, если сессия аутентифицирована.
func (s *Store) Current() (model.SessionIdentity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return model.SessionIdentity{}, false
	}
	return *s.current, true
}

// IsAdmin сообщает, является ли текущий пользователь администратором.
func (s *Store) IsAdmin() bool {
	id, ok := s.Current()
	return ok && id.IsAdmin()
}

// Reload перечитывает authUser из хранилища. Личность, чьей записи больше нет в users, сбрасывается.
func (s *Store) Reload(ctx context.Context) {
	var identity model.SessionIdentity
	ok, err := repository.GetJSON(ctx, s.store, model.KeyAuthUser, &identity)
	if err != nil {
		s.logger.Warn("cannot rehydrate session", zap.Error(err))
		ok = false
	}

	if ok {
		var users []model.UserRecord
		found, err := repository.GetJSON(ctx, s.store, model.KeyUsers, &users)
		if err == nil && found && indexByID(users, identity.ID) < 0 {
			ok = false
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok || identity.ID == "" {
		s.current = nil
		return
	}
	s.current = &identity
}

// Login проверяет учётные данные и открывает сессию. Идентификатор сравнивается с email
// или именем пользователя без учёта регистра. При неудаче возвращается model.ErrInvalidCredentials.
func (s *Store) Login(ctx context.Context, identifier, password string) (model.SessionIdentity, error) {
	key := validation.NormalizeIdentifier(identifier)

	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return model.SessionIdentity{}, err
	}

	if key == s.opts.AdminEmail && indexByIdentifier(users, key) < 0 {
		users, err = s.seedAdmin(ctx, users)
		if err != nil {
			return model.SessionIdentity{}, err
		}
	}

	idx := -1
	legacy := false
	for i, u := range users {
		if !matchesIdentifier(u, key) {
			continue
		}
		if ok, plain := checkSecret(u.Password, password); ok {
			idx, legacy = i, plain
			break
		}
	}
	if idx < 0 {
		return model.SessionIdentity{}, model.ErrInvalidCredentials
	}

	if legacy {
		s.upgradeSecret(ctx, users, idx, password)
	}

	identity := users[idx].Identity()
	return identity, s.setCurrent(ctx, &identity)
}

// Logout закрывает сессию. Повторный вызов безопасен.
func (s *Store) Logout(ctx context.Context) error {
	return s.setCurrent(ctx, nil)
}

// Register создаёт учётную запись с ролью user. Сессия при этом не открывается.
func (s *Store) Register(ctx context.Context, email, password, name string) (model.UserRecord, error) {
	email = validation.NormalizeIdentifier(email)
	if !validation.IsValidEmail(email) {
		return model.UserRecord{}, fmt.Errorf("%w: invalid email", model.ErrValidation)
	}
	if password == "" {
		return model.UserRecord{}, fmt.Errorf("%w: password is required", model.ErrValidation)
	}

	secret, err := s.hash(password)
	if err != nil {
		return model.UserRecord{}, err
	}

	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return model.UserRecord{}, err
	}
	if indexByIdentifier(users, email) >= 0 {
		return model.UserRecord{}, fmt.Errorf("%w: %s", model.ErrDuplicateIdentity, email)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = email[:strings.Index(email, "@")]
	}

	u := model.UserRecord{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  secret,
		Role:      model.RoleUser,
		Name:      name,
		CreatedAt: s.now().UTC(),
	}

	if err := repository.SetJSON(ctx, s.store, model.KeyUsers, append(users, u)); err != nil {
		return model.UserRecord{}, err
	}
	return u, nil
}

// PromoteToAdmin выдаёт пользователю роль администратора.
func (s *Store) PromoteToAdmin(ctx context.Context, identifier string) error {
	key := validation.NormalizeIdentifier(identifier)

	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return err
	}
	idx := indexByIdentifier(users, key)
	if idx < 0 {
		return fmt.Errorf("%w: %s", model.ErrUserNotFound, identifier)
	}

	users[idx].Role = model.RoleAdmin
	if err := repository.SetJSON(ctx, s.store, model.KeyUsers, users); err != nil {
		return err
	}

	s.refreshIdentity(ctx, users[idx])
	return nil
}

// DeleteUser удаляет пользователя. Если удалён текущий пользователь, сессия закрывается.
func (s *Store) DeleteUser(ctx context.Context, identifier string) error {
	key := validation.NormalizeIdentifier(identifier)

	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return err
	}

	kept := make([]model.UserRecord, 0, len(users))
	var removed []model.UserRecord
	for _, u := range users {
		if matchesIdentifier(u, key) {
			removed = append(removed, u)
			continue
		}
		kept = append(kept, u)
	}
	if len(removed) == 0 {
		return fmt.Errorf("%w: %s", model.ErrUserNotFound, identifier)
	}

	if err := repository.SetJSON(ctx, s.store, model.KeyUsers, kept); err != nil {
		return err
	}

	if cur, ok := s.Current(); ok {
		for _, u := range removed {
			if u.ID == cur.ID {
				if err := s.setCurrent(ctx, nil); err != nil {
					s.logger.Warn("deleted user session not cleared in storage", zap.Error(err))
				}
				break
			}
		}
	}
	return nil
}

// Users возвращает все учётные записи.
func (s *Store) Users(ctx context.Context) ([]model.UserRecord, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	return s.loadUsers(ctx)
}

// User возвращает учётную запись по идентификатору.
func (s *Store) User(ctx context.Context, id string) (model.UserRecord, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return model.UserRecord{}, err
	}
	idx := indexByID(users, id)
	if idx < 0 {
		return model.UserRecord{}, fmt.Errorf("%w: %s", model.ErrUserNotFound, id)
	}
	return users[idx], nil
}

// UpdateProfile сохраняет контактные данные и адреса пользователя.
func (s *Store) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (model.UserRecord, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return model.UserRecord{}, err
	}
	idx := indexByID(users, userID)
	if idx < 0 {
		return model.UserRecord{}, fmt.Errorf("%w: %s", model.ErrUserNotFound, userID)
	}

	u := users[idx]
	if name := strings.TrimSpace(upd.Name); name != "" {
		u.Name = name
	}
	u.Phone = strings.TrimSpace(upd.Phone)
	u.Addresses = WithIDs(upd.Addresses)
	u.ShippingAddressID = SelectAddressID(u.Addresses, upd.ShippingAddressID)
	users[idx] = u

	if err := repository.SetJSON(ctx, s.store, model.KeyUsers, users); err != nil {
		return model.UserRecord{}, err
	}

	s.refreshIdentity(ctx, u)
	return u, nil
}

// WithIDs возвращает копию адресов, в которой у каждого адреса есть идентификатор.
func WithIDs(addresses []model.Address) []model.Address {
	res := make([]model.Address, len(addresses))
	for i, a := range addresses {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		res[i] = a
	}
	return res
}

// SelectAddressID возвращает want, если такой адрес есть, иначе идентификатор первого адреса.
func SelectAddressID(addresses []model.Address, want string) string {
	for _, a := range addresses {
		if a.ID == want {
			return want
		}
	}
	if len(addresses) == 0 {
		return ""
	}
	return addresses[0].ID
}

func (s *Store) setCurrent(ctx context.Context, identity *model.SessionIdentity) error {
	s.mu.Lock()
	s.current = identity
	s.mu.Unlock()

	var err error
	if identity == nil {
		if derr := s.store.Delete(ctx, model.KeyAuthUser); derr != nil {
			err = fmt.Errorf("%w: %s: %w", model.ErrPersistenceWrite, model.KeyAuthUser, derr)
		}
	} else {
		err = repository.SetJSON(ctx, s.store, model.KeyAuthUser, identity)
	}
	if err != nil {
		s.logger.Warn("session persisted only in memory", zap.Error(err))
	}
	return err
}

// refreshIdentity обновляет текущую личность, если изменённая запись принадлежит ей.
func (s *Store) refreshIdentity(ctx context.Context, u model.UserRecord) {
	cur, ok := s.Current()
	if !ok || cur.ID != u.ID {
		return
	}
	identity := u.Identity()
	_ = s.setCurrent(ctx, &identity)
}

// loadUsers читает коллекцию users. Вызывается под usersMu. Если ключа ещё нет, коллекция создаётся с учётной записью администратора.
func (s *Store) loadUsers(ctx context.Context) ([]model.UserRecord, error) {
	var users []model.UserRecord
	ok, err := repository.GetJSON(ctx, s.store, model.KeyUsers, &users)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.seedAdmin(ctx, nil)
	}
	return users, nil
}

func (s *Store) seedAdmin(ctx context.Context, users []model.UserRecord) ([]model.UserRecord, error) {
	if s.opts.AdminEmail == "" {
		return users, nil
	}

	secret, err := s.hash(s.opts.AdminPassword)
	if err != nil {
		return nil, err
	}

	admin := model.UserRecord{
		ID:        uuid.NewString(),
		Email:     s.opts.AdminEmail,
		Password:  secret,
		Role:      model.RoleAdmin,
		Name:      "Admin",
		CreatedAt: s.now().UTC(),
	}
	users = append(users, admin)

	if err := repository.SetJSON(ctx, s.store, model.KeyUsers, users); err != nil {
		return nil, err
	}
	s.logger.Info("admin account seeded", zap.String("email", admin.Email))
	return users, nil
}

func (s *Store) upgradeSecret(ctx context.Context, users []model.UserRecord, idx int, password string) {
	secret, err := s.hash(password)
	if err != nil {
		s.logger.Warn("cannot hash legacy secret", zap.Error(err))
		return
	}
	users[idx].Password = secret
	if err := repository.SetJSON(ctx, s.store, model.KeyUsers, users); err != nil {
		s.logger.Warn("legacy secret not upgraded", zap.Error(err), zap.String("user", users[idx].ID))
	}
}

func (s *Store) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.HashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// checkSecret сравнивает пароль с сохранённым секретом. Секрет не в формате bcrypt считается
// открытым текстом из старых данных; второй результат сообщает об этом.
func checkSecret(stored, password string) (ok bool, plain bool) {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil, false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1, true
}

func matchesIdentifier(u model.UserRecord, key string) bool {
	if key == "" {
		return false
	}
	return strings.ToLower(u.Email) == key || (u.Username != "" && strings.ToLower(u.Username) == key)
}

func indexByIdentifier(users []model.UserRecord, key string) int {
	for i, u := range users {
		if matchesIdentifier(u, key) {
			return i
		}
	}
	return -1
}

func indexByID(users []model.UserRecord, id string) int {
	for i, u := range users {
		if u.ID == id {
			return i
		}
	}
	return -1
}
