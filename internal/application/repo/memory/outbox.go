package memory

import (
	"context"
	"marketplace/internal/appers"
	"marketplace/internal/application/entity"
	"sort"
	"time"

	"github.com/gofrs/uuid"
)

func (s *Store) InsertOutbox(ctx context.Context, m *entity.OutboxMessage) error {
	defer s.lock(ctx)()

	s.st.nextOutboxID++
	m.ID = s.st.nextOutboxID
	s.st.outbox[m.ID] = *m
	return nil
}

func (s *Store) ClaimOutboxBatch(ctx context.Context, owner string, lease time.Duration, limit, maxRetries int) ([]entity.OutboxMessage, error) {
	defer s.lock(ctx)()

	now := s.now()
	var pending []entity.OutboxMessage
	for _, m := range s.st.outbox {
		if m.ProcessedOn != nil || m.ErrorCount >= maxRetries {
			continue
		}
		if m.ClaimedUntil != nil && !m.ClaimedUntil.Before(now) {
			continue
		}
		pending = append(pending, m)
	}
	sortOutbox(pending)
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	until := now.Add(lease)
	for i := range pending {
		pending[i].ClaimedBy = owner
		pending[i].ClaimedUntil = &until
		s.st.outbox[pending[i].ID] = pending[i]
	}
	return pending, nil
}

func (s *Store) MarkOutboxProcessed(ctx context.Context, id int64) error {
	defer s.lock(ctx)()

	m, ok := s.st.outbox[id]
	if !ok || m.ProcessedOn != nil {
		return nil
	}
	now := s.now()
	m.ProcessedOn = &now
	m.ClaimedBy = ""
	m.ClaimedUntil = nil
	s.st.outbox[id] = m
	return nil
}

func (s *Store) MarkOutboxFailed(ctx context.Context, id int64, errText string) (int, error) {
	defer s.lock(ctx)()

	m, ok := s.st.outbox[id]
	if !ok || m.ProcessedOn != nil {
		return 0, appers.ErrOutboxNotFound
	}
	m.Error = errText
	m.ErrorCount++
	m.ClaimedBy = ""
	m.ClaimedUntil = nil
	s.st.outbox[id] = m
	return m.ErrorCount, nil
}

func (s *Store) ListDeadLetters(ctx context.Context, maxRetries, limit int) ([]entity.OutboxMessage, error) {
	defer s.lock(ctx)()

	var res []entity.OutboxMessage
	for _, m := range s.st.outbox {
		if m.DeadLettered(maxRetries) {
			res = append(res, m)
		}
	}
	sortOutbox(res)
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *Store) CountDeadLetters(ctx context.Context, maxRetries int) (int, error) {
	defer s.lock(ctx)()

	n := 0
	for _, m := range s.st.outbox {
		if m.DeadLettered(maxRetries) {
			n++
		}
	}
	return n, nil
}

func (s *Store) RequeueOutbox(ctx context.Context, id int64) error {
	defer s.lock(ctx)()

	m, ok := s.st.outbox[id]
	if !ok || m.ProcessedOn != nil {
		return appers.ErrOutboxNotFound
	}
	m.ErrorCount = 0
	m.Error = ""
	m.ClaimedBy = ""
	m.ClaimedUntil = nil
	s.st.outbox[id] = m
	return nil
}

// Outbox returns every stored message in OccurredOn order.
func (s *Store) Outbox() []entity.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]entity.OutboxMessage, 0, len(s.st.outbox))
	for _, m := range s.st.outbox {
		res = append(res, m)
	}
	sortOutbox(res)
	return res
}

func (s *Store) IsProcessed(ctx context.Context, messageID uuid.UUID, consumer string) (bool, error) {
	defer s.lock(ctx)()

	_, ok := s.st.processed[ledgerKey{messageID, consumer}]
	return ok, nil
}

func (s *Store) MarkProcessed(ctx context.Context, messageID uuid.UUID, consumer string) (bool, error) {
	defer s.lock(ctx)()

	k := ledgerKey{messageID, consumer}
	if _, ok := s.st.processed[k]; ok {
		return false, nil
	}
	s.st.processed[k] = s.now()
	return true, nil
}

func sortOutbox(ms []entity.OutboxMessage) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].OccurredOn.Equal(ms[j].OccurredOn) {
			return ms[i].ID < ms[j].ID
		}
		return ms[i].OccurredOn.Before(ms[j].OccurredOn)
	})
}
