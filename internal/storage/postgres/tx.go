package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

type txKey struct{}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// TxManager открывает транзакцию PostgreSQL и кладёт её в контекст:
// репозитории этого пакета подхватывают её через Store.conn.
type TxManager struct {
	store *Store
	opts  *sql.TxOptions
}

// NewTxManager создаёт менеджер транзакций поверх Store.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store, opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted}}
}

// WithinTx выполняет fn в транзакции. Вложенный вызов переиспользует внешнюю.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	if m.store == nil || m.store.db == nil {
		return errStoreNotInitialized
	}

	tx, err := m.store.db.BeginTx(ctx, m.opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ domain.TxManager = (*TxManager)(nil)
