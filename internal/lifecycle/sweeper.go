package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/GymDesk/internal/billing"
	"github.com/router-for-me/GymDesk/internal/metrics"
	internalsettings "github.com/router-for-me/GymDesk/internal/settings"
	"github.com/router-for-me/GymDesk/internal/store"
	log "github.com/sirupsen/logrus"
)

// Sweeper expires memberships whose period has ended, both on demand and on
// a background interval read from settings.
type Sweeper struct {
	store    *store.Store
	now      func() time.Time
	interval func() time.Duration
}

// NewSweeper constructs a Sweeper.
func NewSweeper(st *store.Store) *Sweeper {
	if st == nil {
		return nil
	}
	return &Sweeper{
		store:    st,
		now:      time.Now,
		interval: settingsInterval,
	}
}

func settingsInterval() time.Duration {
	seconds := internalsettings.IntValue(internalsettings.SweepIntervalSecondsKey, internalsettings.DefaultSweepIntervalSeconds)
	if seconds <= 0 {
		seconds = internalsettings.DefaultSweepIntervalSeconds
	}
	return time.Duration(seconds) * time.Second
}

// Sweep expires every pending or active membership whose end date is before
// now and archives the closed period. It returns the number of memberships
// transitioned; a second run with the same now returns zero.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("sweeper: not initialized")
	}
	swept := 0
	errTx := s.store.WithTx(ctx, func(tx *store.Store) error {
		swept = 0
		due, errFind := tx.DueForExpiry(ctx, now)
		if errFind != nil {
			return errFind
		}
		for i := range due {
			membership := due[i]
			period, expired := Expire(&membership, now)
			if !expired {
				continue
			}
			if errSave := tx.SaveMembership(ctx, &membership); errSave != nil {
				if errors.Is(errSave, billing.ErrConcurrentModification) {
					// Changed since it was read; the next sweep sees the new state.
					continue
				}
				return errSave
			}
			if errArchive := tx.ArchivePeriod(ctx, &period); errArchive != nil {
				return errArchive
			}
			swept++
		}
		return nil
	})
	if errTx != nil {
		return 0, errTx
	}
	if swept > 0 {
		metrics.MembershipsExpired.Add(float64(swept))
	}
	return swept, nil
}

// SweepOnce runs Sweep at the current time.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	clock := s.now
	if clock == nil {
		clock = time.Now
	}
	return s.Sweep(ctx, clock())
}

// Start runs the sweep loop in the background until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("membership sweeper started (interval=%s)", s.nextInterval())
}

func (s *Sweeper) nextInterval() time.Duration {
	if s.interval == nil {
		return time.Duration(internalsettings.DefaultSweepIntervalSeconds) * time.Second
	}
	if interval := s.interval(); interval > 0 {
		return interval
	}
	return time.Duration(internalsettings.DefaultSweepIntervalSeconds) * time.Second
}

func (s *Sweeper) run(ctx context.Context) {
	if n, err := s.SweepOnce(ctx); err != nil {
		log.WithError(err).Warn("membership sweeper: initial sweep failed")
	} else if n > 0 {
		log.Infof("membership sweeper: expired %d memberships", n)
	}

	timer := time.NewTimer(s.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				log.WithError(err).Warn("membership sweeper: sweep failed")
			} else if n > 0 {
				log.Infof("membership sweeper: expired %d memberships", n)
			}
			// The interval setting may change at runtime.
			timer.Reset(s.nextInterval())
		}
	}
}
