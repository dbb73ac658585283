package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// PaymentMethodCatalog читает способы оплаты из таблицы payment_methods.
type PaymentMethodCatalog struct {
	store *Store
}

// NewPaymentMethodCatalog создаёт справочник способов оплаты.
func NewPaymentMethodCatalog(store *Store) *PaymentMethodCatalog {
	return &PaymentMethodCatalog{store: store}
}

// Get загружает способ оплаты и разбирает его код поведения.
func (c *PaymentMethodCatalog) Get(ctx context.Context, id string) (domain.PaymentMethod, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var name, code string
	err := c.store.conn(ctx).QueryRowContext(ctx,
		`SELECT name, code FROM payment_methods WHERE id = $1`, id,
	).Scan(&name, &code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PaymentMethod{}, domain.ErrPaymentMethodNotFound
		}
		return domain.PaymentMethod{}, fmt.Errorf("select payment method: %w", err)
	}
	return domain.NewPaymentMethod(id, name, code)
}

// Put добавляет или заменяет способ оплаты.
func (c *PaymentMethodCatalog) Put(ctx context.Context, method domain.PaymentMethod) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := domain.ParsePaymentBehavior(method.Code); err != nil {
		return err
	}
	if _, err := c.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO payment_methods (id, name, code) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, code = EXCLUDED.code
	`, method.ID, method.Name, method.Code); err != nil {
		return fmt.Errorf("upsert payment method: %w", err)
	}
	return nil
}

var _ domain.PaymentMethodCatalog = (*PaymentMethodCatalog)(nil)

// TitleCatalog читает титулы из таблицы titles.
type TitleCatalog struct {
	store *Store
}

// NewTitleCatalog создаёт справочник титулов.
func NewTitleCatalog(store *Store) *TitleCatalog {
	return &TitleCatalog{store: store}
}

func (c *TitleCatalog) Get(ctx context.Context, id string) (domain.Title, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	title := domain.Title{ID: id}
	var titleType string
	err := c.store.conn(ctx).QueryRowContext(ctx,
		`SELECT name, type FROM titles WHERE id = $1`, id,
	).Scan(&title.Name, &titleType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Title{}, domain.ErrTitleNotFound
		}
		return domain.Title{}, fmt.Errorf("select title: %w", err)
	}
	title.Type = domain.TitleType(titleType)
	return title, nil
}

// Put добавляет или заменяет титул.
func (c *TitleCatalog) Put(ctx context.Context, title domain.Title) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := c.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO titles (id, name, type) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type
	`, title.ID, title.Name, string(title.Type)); err != nil {
		return fmt.Errorf("upsert title: %w", err)
	}
	return nil
}

var _ domain.TitleCatalog = (*TitleCatalog)(nil)

// UserDirectory ищет пользователей по имени входа.
type UserDirectory struct {
	store *Store
}

// NewUserDirectory создаёт справочник пользователей.
func NewUserDirectory(store *Store) *UserDirectory {
	return &UserDirectory{store: store}
}

func (d *UserDirectory) Lookup(ctx context.Context, username string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	user := domain.User{Username: username}
	err := d.store.conn(ctx).QueryRowContext(ctx,
		`SELECT id, name FROM users WHERE username = $1`, username,
	).Scan(&user.ID, &user.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUnknownUser
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

// Put добавляет пользователя или обновляет его имя.
func (d *UserDirectory) Put(ctx context.Context, user domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, err := d.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO users (id, username, name) VALUES ($1,$2,$3)
		ON CONFLICT (username) DO UPDATE SET name = EXCLUDED.name
	`, user.ID, user.Username, user.Name); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

var _ domain.UserDirectory = (*UserDirectory)(nil)

// ErrRegisterAlreadyOpen: попытка открыть вторую кассовую смену.
var ErrRegisterAlreadyOpen = errors.New("cash register session is already open")

// RegisterSessions хранит кассовые смены; открытой считается смена без closed_at.
type RegisterSessions struct {
	store *Store
}

// NewRegisterSessions создаёт реестр кассовых смен.
func NewRegisterSessions(store *Store) *RegisterSessions {
	return &RegisterSessions{store: store}
}

// Open открывает новую смену. Вторая открытая смена отклоняется уникальным индексом.
func (r *RegisterSessions) Open(ctx context.Context, username string) (domain.RegisterSession, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	session := domain.RegisterSession{
		ID:       uuid.NewString(),
		OpenedBy: username,
		OpenedAt: time.Now().UTC(),
	}
	if _, err := r.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO register_sessions (id, opened_by, opened_at) VALUES ($1,$2,$3)
	`, session.ID, session.OpenedBy, session.OpenedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.RegisterSession{}, ErrRegisterAlreadyOpen
		}
		return domain.RegisterSession{}, fmt.Errorf("open register session: %w", err)
	}
	return session, nil
}

// CloseSession закрывает текущую смену, если она есть.
func (r *RegisterSessions) CloseSession(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.store.conn(ctx).ExecContext(ctx,
		`UPDATE register_sessions SET closed_at = $1 WHERE closed_at IS NULL`, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("close register session: %w", err)
	}
	return nil
}

func (r *RegisterSessions) IsOpen(ctx context.Context) (bool, error) {
	_, err := r.Current(ctx)
	if errors.Is(err, domain.ErrNoOpenRegister) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *RegisterSessions) Current(ctx context.Context) (domain.RegisterSession, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var session domain.RegisterSession
	err := r.store.conn(ctx).QueryRowContext(ctx, `
		SELECT id, opened_by, opened_at
		FROM register_sessions
		WHERE closed_at IS NULL
		ORDER BY opened_at DESC
		LIMIT 1
	`).Scan(&session.ID, &session.OpenedBy, &session.OpenedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RegisterSession{}, domain.ErrNoOpenRegister
		}
		return domain.RegisterSession{}, fmt.Errorf("select current register session: %w", err)
	}
	session.OpenedAt = session.OpenedAt.UTC()
	return session, nil
}

var _ domain.RegisterSessions = (*RegisterSessions)(nil)
