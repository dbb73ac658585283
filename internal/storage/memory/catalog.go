package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// PaymentMethodCatalog: справочник способов оплаты в памяти.
type PaymentMethodCatalog struct {
	mu      sync.RWMutex
	methods map[string]domain.PaymentMethod
}

// NewPaymentMethodCatalog создаёт справочник с начальным набором способов оплаты.
func NewPaymentMethodCatalog(methods ...domain.PaymentMethod) *PaymentMethodCatalog {
	c := &PaymentMethodCatalog{methods: make(map[string]domain.PaymentMethod, len(methods))}
	for _, m := range methods {
		c.methods[m.ID] = m
	}
	return c
}

// Put добавляет или заменяет способ оплаты.
func (c *PaymentMethodCatalog) Put(method domain.PaymentMethod) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods[method.ID] = method
}

func (c *PaymentMethodCatalog) Get(_ context.Context, id string) (domain.PaymentMethod, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	method, ok := c.methods[id]
	if !ok {
		return domain.PaymentMethod{}, domain.ErrPaymentMethodNotFound
	}
	return method, nil
}

var _ domain.PaymentMethodCatalog = (*PaymentMethodCatalog)(nil)

// TitleCatalog: справочник титулов в памяти.
type TitleCatalog struct {
	mu     sync.RWMutex
	titles map[string]domain.Title
}

// NewTitleCatalog создаёт справочник титулов.
func NewTitleCatalog(titles ...domain.Title) *TitleCatalog {
	c := &TitleCatalog{titles: make(map[string]domain.Title, len(titles))}
	for _, t := range titles {
		c.titles[t.ID] = t
	}
	return c
}

// Put добавляет или заменяет титул.
func (c *TitleCatalog) Put(title domain.Title) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles[title.ID] = title
}

func (c *TitleCatalog) Get(_ context.Context, id string) (domain.Title, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	title, ok := c.titles[id]
	if !ok {
		return domain.Title{}, domain.ErrTitleNotFound
	}
	return title, nil
}

var _ domain.TitleCatalog = (*TitleCatalog)(nil)

// UserDirectory: справочник пользователей в памяти.
type UserDirectory struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewUserDirectory создаёт справочник пользователей.
func NewUserDirectory(users ...domain.User) *UserDirectory {
	d := &UserDirectory{users: make(map[string]domain.User, len(users))}
	for _, u := range users {
		d.users[u.Username] = u
	}
	return d
}

// Put добавляет пользователя.
func (d *UserDirectory) Put(user domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.Username] = user
}

func (d *UserDirectory) Lookup(_ context.Context, username string) (domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[username]
	if !ok {
		return domain.User{}, domain.ErrUnknownUser
	}
	return user, nil
}

var _ domain.UserDirectory = (*UserDirectory)(nil)

// RegisterSessions хранит состояние кассовой смены. Открытием и закрытием
// управляет внешний компонент; сервис продаж только читает.
type RegisterSessions struct {
	mu      sync.RWMutex
	current *domain.RegisterSession
}

// NewRegisterSessions создаёт закрытую кассу.
func NewRegisterSessions() *RegisterSessions {
	return &RegisterSessions{}
}

// Open открывает новую смену от имени пользователя.
func (r *RegisterSessions) Open(username string) domain.RegisterSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := domain.RegisterSession{
		ID:       uuid.NewString(),
		OpenedBy: username,
		OpenedAt: time.Now().UTC(),
	}
	r.current = &session
	return session
}

// CloseSession закрывает текущую смену.
func (r *RegisterSessions) CloseSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
}

func (r *RegisterSessions) IsOpen(_ context.Context) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current != nil, nil
}

func (r *RegisterSessions) Current(_ context.Context) (domain.RegisterSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.current == nil {
		return domain.RegisterSession{}, domain.ErrNoOpenRegister
	}
	return *r.current, nil
}

var _ domain.RegisterSessions = (*RegisterSessions)(nil)
