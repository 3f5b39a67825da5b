package repo

import (
	"context"
	"errors"
	"fmt"
	"marketplace/internal/appers"
	"marketplace/internal/application/common"
	"marketplace/internal/application/entity"
	"sort"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
)

func (r *RepoImpl) InsertOutbox(ctx context.Context, m *entity.OutboxMessage) error {
	r.logger.Debugf("[event %s] InsertOutbox started, type=%s", m.EventID, m.EventTypeName)

	err := r.db.QueryRow(ctx, insertOutboxSQL,
		m.EventID, m.EventTypeName, []byte(m.Payload), m.OccurredOn,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert outbox_messages: %w", err)
	}
	return nil
}

func (r *RepoImpl) ClaimOutboxBatch(ctx context.Context, owner string, lease time.Duration, limit, maxRetries int) ([]entity.OutboxMessage, error) {
	r.logger.Debugf("[owner: %s, lease: %s, limit: %d, maxRetries: %d] ClaimOutboxBatch started", owner, lease, limit, maxRetries)

	rows, err := r.db.Query(ctx, claimBatchSQL, owner, common.PgInterval(lease), limit, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	res, err := scanOutbox(rows)
	if err != nil {
		return nil, err
	}

	// UPDATE ... RETURNING does not keep the CTE order
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].OccurredOn.Equal(res[j].OccurredOn) {
			return res[i].ID < res[j].ID
		}
		return res[i].OccurredOn.Before(res[j].OccurredOn)
	})
	return res, nil
}

func (r *RepoImpl) MarkOutboxProcessed(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, markOutboxProcessedSQL, id); err != nil {
		return fmt.Errorf("outbox mark processed: %w", err)
	}
	return nil
}

func (r *RepoImpl) MarkOutboxFailed(ctx context.Context, id int64, errText string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, markOutboxFailedSQL, id, errText).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, appers.ErrOutboxNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("outbox mark failed: %w", err)
	}
	return count, nil
}

func (r *RepoImpl) ListDeadLetters(ctx context.Context, maxRetries, limit int) ([]entity.OutboxMessage, error) {
	rows, err := r.db.Query(ctx, listDeadLettersSQL, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return scanOutbox(rows)
}

func (r *RepoImpl) CountDeadLetters(ctx context.Context, maxRetries int) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, countDeadLettersSQL, maxRetries).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}

func (r *RepoImpl) RequeueOutbox(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, requeueOutboxSQL, id)
	if err != nil {
		return fmt.Errorf("requeue outbox: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return appers.ErrOutboxNotFound
	}
	r.logger.Infof("[ID %d] outbox message requeued", id)
	return nil
}

func (r *RepoImpl) IsProcessed(ctx context.Context, messageID uuid.UUID, consumer string) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, isProcessedSQL, messageID, consumer).Scan(&ok); err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return ok, nil
}

func (r *RepoImpl) MarkProcessed(ctx context.Context, messageID uuid.UUID, consumer string) (bool, error) {
	tag, err := r.db.Exec(ctx, markProcessedSQL, messageID, consumer)
	if err != nil {
		return false, fmt.Errorf("ledger insert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanOutbox(rows pgx.Rows) ([]entity.OutboxMessage, error) {
	defer rows.Close()

	var res []entity.OutboxMessage
	for rows.Next() {
		var (
			m       entity.OutboxMessage
			payload []byte
		)
		if err := rows.Scan(
			&m.ID, &m.EventID, &m.EventTypeName, &payload, &m.OccurredOn, &m.ProcessedOn,
			&m.Error, &m.ErrorCount, &m.ClaimedBy, &m.ClaimedUntil,
		); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		m.Payload = payload
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox rows err: %w", err)
	}
	return res, nil
}
