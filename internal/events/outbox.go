package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/medpractice-booking/internal/store/postgres"
	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

// OutboxEntry is a claimed event. Attempts counts this delivery.
type OutboxEntry struct {
	ID        uuid.UUID
	DoctorID  string
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
	Attempts  int
}

// DeliveryHandler emits events to downstream consumers.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

// OutboxStore persists schedule events in the same transaction as the change they describe.
type OutboxStore struct {
	db postgres.Querier
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

func newOutboxStoreWithExec(exec postgres.Querier) *OutboxStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &OutboxStore{db: exec}
}

// Insert writes through q, which is normally the caller's open doctor transaction.
// A nil q falls back to the store's own pool.
func (s *OutboxStore) Insert(ctx context.Context, q postgres.Querier, doctorID string, eventType string, payload any) (uuid.UUID, error) {
	if q == nil {
		q = s.db
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	id := uuid.New()
	if _, err := q.Exec(ctx, `
		INSERT INTO outbox (id, doctor_id, type, payload)
		VALUES ($1, $2, $3, $4)
	`, id, doctorID, eventType, data); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox: %w", err)
	}
	return id, nil
}

// Claim leases up to limit undelivered entries whose attempts are below maxAttempts. Claimed rows
// are hidden from other deliverers until the lease runs out, so API replicas can poll the same
// table. Entries come back oldest first.
func (s *OutboxStore) Claim(ctx context.Context, limit int32, lease time.Duration, maxAttempts int) ([]OutboxEntry, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE outbox o
		SET available_at = now() + make_interval(secs => $2), attempts = o.attempts + 1
		FROM (
			SELECT id
			FROM outbox
			WHERE delivered_at IS NULL AND available_at <= now() AND attempts < $3
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		) picked
		WHERE o.id = picked.id
		RETURNING o.id, o.doctor_id, o.type, o.payload, o.created_at, o.attempts
	`, limit, lease.Seconds(), maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("events: claim outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.DoctorID, &entry.Type, &payload, &entry.CreatedAt, &entry.Attempts); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events: claim outbox: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries, nil
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE outbox
		SET delivered_at = now(), last_error = NULL
		WHERE id = $1 AND delivered_at IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// PruneDelivered removes entries delivered before cutoff. Parked entries are kept for inspection.
func (s *OutboxStore) PruneDelivered(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM outbox WHERE delivered_at IS NOT NULL AND delivered_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("events: prune outbox: %w", err)
	}
	return ct.RowsAffected(), nil
}

// Release records a failed delivery and makes the entry claimable again after retryIn.
func (s *OutboxStore) Release(ctx context.Context, id uuid.UUID, retryIn time.Duration, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := s.db.Exec(ctx, `
		UPDATE outbox
		SET available_at = now() + make_interval(secs => $2), last_error = $3
		WHERE id = $1 AND delivered_at IS NULL
	`, id, retryIn.Seconds(), msg); err != nil {
		return fmt.Errorf("events: release outbox: %w", err)
	}
	return nil
}

type outboxQueue interface {
	Claim(ctx context.Context, limit int32, lease time.Duration, maxAttempts int) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	Release(ctx context.Context, id uuid.UUID, retryIn time.Duration, cause error) error
}

const maxRetryDelay = 5 * time.Minute

// Deliverer polls the outbox and invokes the handler. A failed entry is retried with exponential
// backoff and parked once it has used maxAttempts deliveries.
type Deliverer struct {
	store       outboxQueue
	handler     DeliveryHandler
	logger      *logging.Logger
	batchSize   int32
	interval    time.Duration
	lease       time.Duration
	maxAttempts int
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	d := newDeliverer(handler, logger)
	if store != nil {
		d.store = store
	}
	return d
}

func newDeliverer(handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		handler:     handler,
		logger:      logger,
		batchSize:   25,
		interval:    2 * time.Second,
		lease:       time.Minute,
		maxAttempts: 10,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) WithMaxAttempts(n int) *Deliverer {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) int {
	entries, err := d.store.Claim(ctx, d.batchSize, d.lease, d.maxAttempts)
	if err != nil {
		d.logger.Error("outbox claim failed", "error", err)
		return 0
	}
	delivered := 0
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.fail(ctx, entry, err)
			continue
		}
		if ok, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
		} else if ok {
			delivered++
			d.logger.Debug("outbox delivered", "event_id", entry.ID, "type", entry.Type, "attempts", entry.Attempts)
		}
	}
	return delivered
}

func (d *Deliverer) fail(ctx context.Context, entry OutboxEntry, cause error) {
	retryIn := d.retryDelay(entry.Attempts)
	if entry.Attempts >= d.maxAttempts {
		d.logger.Error("outbox entry parked after max attempts",
			"error", cause, "event_id", entry.ID, "type", entry.Type, "attempts", entry.Attempts)
	} else {
		d.logger.Warn("outbox delivery failed",
			"error", cause, "event_id", entry.ID, "type", entry.Type, "attempts", entry.Attempts, "retry_in", retryIn)
	}
	if err := d.store.Release(ctx, entry.ID, retryIn, cause); err != nil {
		d.logger.Error("failed to release outbox entry", "error", err, "event_id", entry.ID)
	}
}

// retryDelay doubles the poll interval per attempt, capped at maxRetryDelay.
func (d *Deliverer) retryDelay(attempts int) time.Duration {
	delay := d.interval
	for i := 1; i < attempts && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
