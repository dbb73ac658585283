package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/storage/memory"
)

func saleEvent(id, saleID, eventType string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateSale,
		AggregateID:   saleID,
		EventType:     eventType,
		Payload:       []byte(`{"status":"CLOSED","final_value":"160.00"}`),
		CreatedAt:     time.Now().UTC().Add(-time.Second),
	}
}

func decodeDeadLetter(t *testing.T, msg domain.OutboxMessage) deadLetter {
	t.Helper()
	var dl deadLetter
	if err := json.Unmarshal(msg.Payload, &dl); err != nil {
		t.Fatalf("dlq payload is not json: %v", err)
	}
	return dl
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	if _, err := repo.Enqueue(context.Background(), saleEvent("msg-1", "sale-1", domain.EventSaleClosed)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))
	res := worker.ProcessOnce(context.Background())

	if res != (BatchResult{Sent: 1}) {
		t.Fatalf("unexpected batch result %+v", res)
	}
	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected 1 publish call, got %d", got)
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d pending", len(pending))
	}

	// Отправленное событие не публикуется повторно.
	if res := worker.ProcessOnce(context.Background()); res != (BatchResult{}) {
		t.Fatalf("expected empty second batch, got %+v", res)
	}
	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected no republish, got %d calls", got)
	}
}

func TestWorker_ProcessOnce_DeadLettersAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{saleEvent("msg-2", "sale-2", domain.EventSaleClosed)}}
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlq := &stubPublisher{}

	worker := NewWorker(repo, publisher, WithDLQPublisher(dlq), WithRetryBaseDelay(0), WithMaxAttempts(3))
	res := worker.ProcessOnce(context.Background())

	if res != (BatchResult{DeadLettered: 1}) {
		t.Fatalf("unexpected batch result %+v", res)
	}
	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if len(repo.sentIDs) != 0 {
		t.Fatalf("expected no sent marks, got %v", repo.sentIDs)
	}
	if len(repo.failedIDs) != 1 || repo.failedIDs[0] != "msg-2" {
		t.Fatalf("expected failed mark for msg-2, got %v", repo.failedIDs)
	}
	if got := dlq.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", got)
	}

	if dlq.last.AggregateID != "sale-2" {
		t.Fatalf("dlq message must keep the sale key, got %q", dlq.last.AggregateID)
	}
	dl := decodeDeadLetter(t, dlq.last)
	if dl.Reason != ReasonPublishFailed || dl.Attempts != 3 {
		t.Fatalf("unexpected dlq record %+v", dl)
	}
	if dl.AggregateID != "sale-2" || dl.EventType != domain.EventSaleClosed || len(dl.Payload) == 0 {
		t.Fatalf("dlq record must carry the sale event, got %+v", dl)
	}
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{saleEvent("msg-3", "sale-3", domain.EventSaleOpened)}}
	publisher := &stubPublisher{
		sequenceErrors: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil},
	}

	res := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3)).ProcessOnce(context.Background())

	if res != (BatchResult{Sent: 1}) {
		t.Fatalf("unexpected batch result %+v", res)
	}
	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if len(repo.sentIDs) != 1 || len(repo.failedIDs) != 0 {
		t.Fatalf("unexpected marks: sent=%v failed=%v", repo.sentIDs, repo.failedIDs)
	}
}

func TestWorker_ProcessOnce_RoutesClosedSales(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{
		saleEvent("msg-open", "sale-4", domain.EventSaleOpened),
		saleEvent("msg-item", "sale-4", domain.EventSaleItemAdded),
		saleEvent("msg-close", "sale-4", domain.EventSaleClosed),
	}}
	events := &stubPublisher{}
	closed := &stubPublisher{}

	res := NewWorker(repo, events, WithRoute(domain.EventSaleClosed, closed)).ProcessOnce(context.Background())

	if res.Sent != 3 {
		t.Fatalf("expected 3 sent, got %+v", res)
	}
	if events.calls() != 2 {
		t.Fatalf("expected 2 events on default publisher, got %d", events.calls())
	}
	if closed.calls() != 1 || closed.last.ID != "msg-close" {
		t.Fatalf("closed sale must go to its own route, got %d calls last=%q", closed.calls(), closed.last.ID)
	}
}

func TestWorker_ProcessOnce_InvalidEventsSkipRetries(t *testing.T) {
	t.Parallel()

	noSale := saleEvent("msg-no-sale", " ", domain.EventSaleClosed)
	unknownType := saleEvent("msg-unknown", "sale-5", "sale.closed")
	brokenPayload := saleEvent("msg-broken", "sale-6", domain.EventSaleItemAdded)
	brokenPayload.Payload = []byte(`{"item":`)

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{noSale, unknownType, brokenPayload}}
	publisher := &stubPublisher{}
	dlq := &stubPublisher{}

	res := NewWorker(repo, publisher, WithDLQPublisher(dlq), WithMaxAttempts(5)).ProcessOnce(context.Background())

	if res != (BatchResult{DeadLettered: 3}) {
		t.Fatalf("unexpected batch result %+v", res)
	}
	if publisher.calls() != 0 {
		t.Fatalf("invalid sale events must not be published, got %d calls", publisher.calls())
	}
	if dlq.calls() != 3 || len(repo.failedIDs) != 3 {
		t.Fatalf("expected 3 dead letters, got dlq=%d failed=%v", dlq.calls(), repo.failedIDs)
	}

	dl := decodeDeadLetter(t, dlq.last)
	if dl.Reason != ReasonInvalidEvent || dl.Attempts != 0 {
		t.Fatalf("unexpected dlq record %+v", dl)
	}
	if dl.RawPayload != `{"item":` || len(dl.Payload) != 0 {
		t.Fatalf("broken payload must be kept as raw text, got %+v", dl)
	}
}

func TestWorker_ProcessOnce_StopLeavesEventPending(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{
		saleEvent("msg-7", "sale-7", domain.EventSaleClosed),
		saleEvent("msg-8", "sale-8", domain.EventSaleClosed),
	}}
	publisher := &stubPublisher{err: errors.New("broker unavailable"), onPublish: cancel}
	dlq := &stubPublisher{}

	res := NewWorker(repo, publisher, WithDLQPublisher(dlq), WithRetryBaseDelay(time.Hour)).ProcessOnce(ctx)

	if res != (BatchResult{Deferred: 2}) {
		t.Fatalf("unexpected batch result %+v", res)
	}
	if publisher.calls() != 1 {
		t.Fatalf("expected a single attempt before stop, got %d", publisher.calls())
	}
	if dlq.calls() != 0 || len(repo.failedIDs) != 0 || len(repo.sentIDs) != 0 {
		t.Fatalf("stopped worker must not settle events: dlq=%d failed=%v sent=%v", dlq.calls(), repo.failedIDs, repo.sentIDs)
	}
}

func TestWorker_ProcessOnce_ToleratesSettledRecord(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{saleEvent("msg-9", "sale-9", domain.EventSaleClosed)},
		markErr: domain.ErrOutboxPublish,
	}

	res := NewWorker(repo, &stubPublisher{}).ProcessOnce(context.Background())
	if res != (BatchResult{Sent: 1}) {
		t.Fatalf("unexpected batch result %+v", res)
	}
}

func TestWorker_ProcessOnce_PullError(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pullErr: errors.New("db down")}
	publisher := &stubPublisher{}

	if res := NewWorker(repo, publisher).ProcessOnce(context.Background()); res != (BatchResult{}) {
		t.Fatalf("unexpected batch result %+v", res)
	}
	if got := publisher.calls(); got != 0 {
		t.Fatalf("expected no publish on pull error, got %d", got)
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	cases := []struct {
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{0, 3, 0},
		{10 * time.Millisecond, 1, 10 * time.Millisecond},
		{10 * time.Millisecond, 3, 40 * time.Millisecond},
		{time.Second, 10, maxRetryDelay},
		{time.Minute, 1, maxRetryDelay},
	}
	for _, tc := range cases {
		if got := retryDelay(tc.base, tc.attempt); got != tc.want {
			t.Errorf("retryDelay(%s, %d) = %s, want %s", tc.base, tc.attempt, got, tc.want)
		}
	}
}

func TestDeadLetterReason(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: missing sale id", errInvalidEvent), ReasonInvalidEvent},
		{fmt.Errorf("publish: %w", context.DeadlineExceeded), ReasonTimeout},
		{fmt.Errorf("%w: after 3 attempts: %w", domain.ErrOutboxPublish, errors.New("i/o timeout")), ReasonPublishFailed},
		{errors.New("boom"), ReasonUnknown},
	}
	for _, tc := range cases {
		if got := deadLetterReason(tc.err); got != tc.want {
			t.Errorf("deadLetterReason(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := NewWorker(
		memory.NewOutboxRepository(),
		&stubPublisher{},
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type stubOutboxRepo struct {
	mu        sync.Mutex
	pending   []domain.OutboxMessage
	pullErr   error
	markErr   error
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if s.pullErr != nil {
		return nil, s.pullErr
	}
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats(_ context.Context) (domain.OutboxStats, error) {
	stats := domain.OutboxStats{PendingCount: len(s.pending)}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = s.pending[0].CreatedAt
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentIDs = append(s.sentIDs, id)
	return s.markErr
}

func (s *stubOutboxRepo) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedIDs = append(s.failedIDs, id)
	return s.markErr
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	onPublish      func()
	callCount      int
	last           domain.OutboxMessage
}

func (s *stubPublisher) Publish(msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.last = msg
	if s.onPublish != nil {
		s.onPublish()
	}
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

var (
	_ domain.OutboxRepository = (*stubOutboxRepo)(nil)
	_ domain.OutboxPublisher  = (*stubPublisher)(nil)
)
