package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

type journalKey struct{}

// journal копит функции отката изменений, сделанных внутри единицы работы.
type journal struct {
	undo []func()
}

func (j *journal) add(fn func()) {
	j.undo = append(j.undo, fn)
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// remember регистрирует откат, если вызов идёт внутри транзакции.
func remember(ctx context.Context, fn func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.add(fn)
	}
}

// TxManager сериализует единицы работы и откатывает их изменения при ошибке.
type TxManager struct {
	mu sync.Mutex
}

// NewTxManager создаёт in-memory менеджер транзакций.
func NewTxManager() *TxManager {
	return &TxManager{}
}

// WithinTx выполняет fn под глобальной блокировкой. Вложенные вызовы
// присоединяются к внешней транзакции.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	j := &journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		j.rollback()
		return err
	}
	return nil
}

var _ domain.TxManager = (*TxManager)(nil)
