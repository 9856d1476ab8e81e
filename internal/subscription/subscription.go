// Package subscription keeps callers waiting for a performance to reach a booked-seat
// threshold and resolves them from the dispatch pass that follows each booking.
package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/concert-booking/internal/domain"
)

type state int

const (
	pending state = iota
	resolved
	cancelled
)

// Subscription is a one-shot handle. The first Resolve or Cancel wins; every later
// transition reports false.
type Subscription struct {
	ID        uuid.UUID
	ConcertID int64
	Date      time.Time
	Threshold int
	UserID    int64

	mu     sync.Mutex
	state  state
	result domain.Notification
	done   chan struct{}
}

func New(concertID int64, date time.Time, threshold int, userID int64) *Subscription {
	return &Subscription{
		ID:        uuid.New(),
		ConcertID: concertID,
		Date:      date,
		Threshold: threshold,
		UserID:    userID,
		done:      make(chan struct{}),
	}
}

// Matches reports whether occ, counted for (concertID, date), meets the threshold of s.
func (s *Subscription) Matches(concertID int64, date time.Time, occ domain.Occupancy) bool {
	return s.ConcertID == concertID && s.Date.Equal(date) && occ.Reaches(s.Threshold)
}

func (s *Subscription) Resolve(n domain.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != pending {
		return false
	}
	s.state = resolved
	s.result = n
	close(s.done)
	return true
}

func (s *Subscription) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != pending {
		return false
	}
	s.state = cancelled
	close(s.done)
	return true
}

func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Wait blocks until s is resolved or ctx ends. A context end cancels the handle
// unless a resolution won the race, in which case the notification is returned.
func (s *Subscription) Wait(ctx context.Context) (domain.Notification, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		s.Cancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == resolved {
		return s.result, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.Notification{}, err
	}
	return domain.Notification{}, context.Canceled
}
