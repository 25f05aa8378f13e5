package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"emberquest/server/internal/models"
	"emberquest/server/internal/storage"
)

// The daily quota is measured per calendar day in server-local time, not a
// sliding 24h window. Known limitation: an IP straddling timezones sees the
// reset at the server's midnight, not its own.

// RateLimitStatus is the quota view exposed to an anonymous caller.
type RateLimitStatus struct {
	Allowed   bool   `json:"allowed"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Message   string `json:"message,omitempty"`
}

// RateLimitStatus reports the quota state for ip without consuming anything.
func (s *Service) RateLimitStatus(ctx context.Context, ip string) (*RateLimitStatus, error) {
	used, err := s.usageToday(ctx, ip, s.Now())
	if err != nil {
		return nil, err
	}
	limit := s.cfg.FreeDailyLimit
	status := &RateLimitStatus{
		Allowed:   used < limit,
		Used:      used,
		Limit:     limit,
		Remaining: limit - used,
	}
	if !status.Allowed {
		status.Remaining = 0
		status.Message = deniedMessage(limit)
	}
	return status, nil
}

// checkQuota is the cheap pre-generator gate: it rejects an anonymous create
// that has no chance of succeeding, without consuming anything.
func (s *Service) checkQuota(ctx context.Context, ip string) error {
	if ip == "" {
		return fmt.Errorf("%w: missing client address", ErrValidation)
	}
	release, err := s.locks.Acquire(ctx, "ratelimit:"+ip)
	if err != nil {
		return err
	}
	defer release()

	used, err := s.usageToday(ctx, ip, s.Now())
	if err != nil {
		return err
	}
	if used >= s.cfg.FreeDailyLimit {
		return fmt.Errorf("%w: %s", ErrDailyLimit, deniedMessage(s.cfg.FreeDailyLimit))
	}
	return nil
}

// consumeQuota atomically re-checks and claims one start. It is the
// authoritative gate: two concurrent creates from one IP at the quota
// boundary serialize here, so at most one is allowed through.
func (s *Service) consumeQuota(ctx context.Context, ip string) error {
	release, err := s.locks.Acquire(ctx, "ratelimit:"+ip)
	if err != nil {
		return err
	}
	defer release()

	now := s.Now()
	counter, err := s.store.GetRateLimit(ctx, ip)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	used := 0
	if counter != nil && sameDay(counter.LastResetDate, now) {
		used = counter.GamesStartedToday
	}
	if used >= s.cfg.FreeDailyLimit {
		return fmt.Errorf("%w: %s", ErrDailyLimit, deniedMessage(s.cfg.FreeDailyLimit))
	}

	// Upsert in place: count resets to 1 on day rollover, else increments.
	return s.store.UpsertRateLimit(ctx, &models.RateLimitCounter{
		IP:                ip,
		GamesStartedToday: used + 1,
		LastResetDate:     now,
	})
}

func (s *Service) usageToday(ctx context.Context, ip string, now time.Time) (int, error) {
	counter, err := s.store.GetRateLimit(ctx, ip)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	// A stored date strictly before today means the day rolled over and the
	// stored count no longer applies.
	if !sameDay(counter.LastResetDate, now) {
		return 0, nil
	}
	return counter.GamesStartedToday, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func deniedMessage(limit int) string {
	return fmt.Sprintf("You've reached the limit of %d free adventures today. Sign up to keep playing, or return tomorrow.", limit)
}
