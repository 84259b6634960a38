package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/service"
)

type transfer struct {
	fromID string
	toID   string
	at     time.Time
}

// ledgerTx buffers writes until InLedgerTx commits them under the store
// lock. The per-assignment key lock keeps other writers of the same
// assignment out for the whole transaction.
type ledgerTx struct {
	s            *Store
	assignmentID string
	events       []models.ReassignmentEvent
	delta        int
	history      []models.HistoryEntry
	transfer     *transfer
}

func (s *Store) InLedgerTx(ctx context.Context, assignmentID string, fn func(tx service.LedgerTx) error) error {
	unlock, err := s.locks.Lock(ctx, assignmentID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.RLock()
	_, ok := s.assignments[assignmentID]
	s.mu.RUnlock()
	if !ok {
		return models.ErrNotFound
	}

	tx := &ledgerTx{s: s, assignmentID: assignmentID}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *ledgerTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assignments[tx.assignmentID]
	if !ok {
		return models.ErrNotFound
	}
	if t := tx.transfer; t != nil {
		if a.ConsultantID != t.fromID {
			return models.ErrHolderChanged
		}
		to, ok := s.consultants[t.toID]
		if !ok || !to.HasCapacity() {
			return models.ErrConsultantUnavailable
		}
		at := t.at
		to.CurrentAssignmentCount++
		to.LastAssignedAt = &at
		s.consultants[to.ID] = to
		if from, ok := s.consultants[t.fromID]; ok && from.CurrentAssignmentCount > 0 {
			from.CurrentAssignmentCount--
			s.consultants[from.ID] = from
		}
		a.ConsultantID = t.toID
		a.Status = models.StatusReassigned
	}

	s.events[a.ID] = append(s.events[a.ID], tx.events...)
	a.ReassignmentCount += tx.delta
	a.History = append(append([]models.HistoryEntry(nil), a.History...), tx.history...)
	if a.OriginalAssignmentID == nil && tx.delta > 0 {
		id := a.ID
		a.OriginalAssignmentID = &id
	}
	s.assignments[a.ID] = a
	return nil
}

func (tx *ledgerTx) GetAssignment(ctx context.Context, id string) (models.Assignment, error) {
	return tx.s.GetAssignment(ctx, id)
}

func (tx *ledgerTx) MaxReassignmentNumber(ctx context.Context, assignmentID string) (int, error) {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	max := 0
	for _, ev := range tx.s.events[assignmentID] {
		if ev.ReassignmentNumber > max {
			max = ev.ReassignmentNumber
		}
	}
	for _, ev := range tx.events {
		if ev.AssignmentID == assignmentID && ev.ReassignmentNumber > max {
			max = ev.ReassignmentNumber
		}
	}
	return max, nil
}

func (tx *ledgerTx) AppendEvent(ctx context.Context, ev models.ReassignmentEvent) (string, error) {
	if ev.AssignmentID != tx.assignmentID || ev.ReassignmentNumber <= 0 || ev.OriginalConsultantID == ev.NewConsultantID {
		return "", models.ErrConstraint
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	tx.events = append(tx.events, ev)
	return ev.ID, nil
}

func (tx *ledgerTx) IncrementReassignmentCount(ctx context.Context, assignmentID string, delta int, entry models.HistoryEntry) error {
	if assignmentID != tx.assignmentID {
		return models.ErrConstraint
	}
	tx.delta += delta
	tx.history = append(tx.history, entry)
	return nil
}

func (tx *ledgerTx) TransferConsultant(ctx context.Context, assignmentID, fromID, toID string, at time.Time) error {
	if assignmentID != tx.assignmentID {
		return models.ErrConstraint
	}
	tx.s.mu.RLock()
	to, ok := tx.s.consultants[toID]
	tx.s.mu.RUnlock()
	if !ok || !to.HasCapacity() {
		return models.ErrConsultantUnavailable
	}
	tx.transfer = &transfer{fromID: fromID, toID: toID, at: at}
	return nil
}
