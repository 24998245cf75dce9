package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"orchestrator/internal/domain"
)

const (
	taskEventChannel = "task_events"

	notifyTimeout    = 5 * time.Second
	listenRetryDelay = 2 * time.Second
)

// TaskNotifier is a domain.TaskPublisher that relays task events through
// Postgres NOTIFY, so transitions recorded by one process reach the live
// subscribers of another. The reconciler publishes its sweep results here;
// the api bridges the channel back into its in-process hub with
// ListenTaskEvents.
type TaskNotifier struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewTaskNotifier(pool *pgxpool.Pool, logger zerolog.Logger) *TaskNotifier {
	return &TaskNotifier{pool: pool, logger: logger}
}

// Publish sends the event to every listener on the task event channel.
// Broadcast is best effort: a notify failure is logged, never propagated,
// because the transition it describes is already persisted.
func (n *TaskNotifier) Publish(event domain.TaskEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error().Err(err).Str("task_id", event.TaskID).Msg("notify: task event encode failed")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if _, err := n.pool.Exec(ctx, `SELECT pg_notify($1, $2);`, taskEventChannel, string(payload)); err != nil {
		n.logger.Error().Err(err).Str("task_id", event.TaskID).Msg("notify: task event publish failed")
	}
}

// ListenTaskEvents relays NOTIFY payloads from the task event channel into
// sink until ctx ends. The listening connection is re-acquired after a
// failure so a database restart does not silence the bridge for good.
func ListenTaskEvents(ctx context.Context, pool *pgxpool.Pool, sink domain.TaskPublisher, logger zerolog.Logger) {
	for ctx.Err() == nil {
		err := listenTaskEvents(ctx, pool, sink, logger)
		if err == nil || ctx.Err() != nil {
			return
		}
		logger.Warn().Err(err).Msg("notify: task event listener reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(listenRetryDelay):
		}
	}
}

func listenTaskEvents(ctx context.Context, pool *pgxpool.Pool, sink domain.TaskPublisher, logger zerolog.Logger) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `LISTEN `+taskEventChannel+`;`); err != nil {
		return fmt.Errorf("listen on %s: %w", taskEventChannel, err)
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		event, err := decodeTaskEvent([]byte(notification.Payload))
		if err != nil {
			logger.Warn().Err(err).Msg("notify: ignoring malformed task event")
			continue
		}
		sink.Publish(event)
	}
}

func decodeTaskEvent(payload []byte) (domain.TaskEvent, error) {
	var event domain.TaskEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.TaskEvent{}, fmt.Errorf("decode task event: %w", err)
	}
	if event.TaskID == "" || event.OwnerID == "" {
		return domain.TaskEvent{}, fmt.Errorf("task event missing identifiers")
	}
	return event, nil
}

var _ domain.TaskPublisher = (*TaskNotifier)(nil)
