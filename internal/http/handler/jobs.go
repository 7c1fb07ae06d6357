package handler

import (
	"context"
	"time"
)

func (h *Handler) StartBackgroundJobs() {
	if h == nil || h.repo == nil {
		return
	}

	h.jobsMu.Lock()
	if h.jobsStarted {
		h.jobsMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.jobsCancel = cancel
	h.jobsStarted = true
	h.jobsWG.Add(2)
	h.jobsMu.Unlock()

	go h.runHourlyUsageLoop(ctx)
	go h.runDailyMaintenanceLoop(ctx)
}

func (h *Handler) StopBackgroundJobs() {
	if h == nil {
		return
	}

	h.jobsMu.Lock()
	if !h.jobsStarted {
		h.jobsMu.Unlock()
		return
	}
	cancel := h.jobsCancel
	h.jobsCancel = nil
	h.jobsStarted = false
	h.jobsMu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.jobsWG.Wait()
}

func (h *Handler) runHourlyUsageLoop(ctx context.Context) {
	defer h.jobsWG.Done()

	for {
		wait := durationUntilNextHour(time.Now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
			h.runUsageSampleJob(ctx, time.Now())
		}
	}
}

func (h *Handler) runDailyMaintenanceLoop(ctx context.Context) {
	defer h.jobsWG.Done()

	for {
		wait := durationUntilNextDailyMaintenance(time.Now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
			h.runExpirySweepJob(ctx)
		}
	}
}

func durationUntilNextHour(now time.Time) time.Duration {
	next := now.Truncate(time.Hour).Add(time.Hour)
	return next.Sub(now)
}

func durationUntilNextDailyMaintenance(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 5, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

// runUsageSampleJob records one traffic observation per user: the sum
// of remote counters across their configs, plus the increment since
// the previous sample. A negative increment means the panel counters
// were reset, in which case the current total is recorded instead.
func (h *Handler) runUsageSampleJob(ctx context.Context, now time.Time) {
	if h == nil || h.repo == nil {
		return
	}

	nowMs := now.UnixMilli()
	cutoffMs := nowMs - int64((48*time.Hour)/time.Millisecond)
	_ = h.repo.PurgeOldUsageSamples(cutoffMs)

	hourMark := now.Truncate(time.Hour)
	hourText := hourMark.Format("15:04")
	createdTime := hourMark.UnixMilli()

	users, err := h.repo.ListUserRecords()
	if err != nil {
		return
	}

	for _, user := range users {
		currentTotal, err := h.sumUserTraffic(ctx, user.ID)
		if err != nil {
			h.log.WithError(err).WithField("user", user.ID).Debug("usage sample skipped")
			continue
		}

		increment := currentTotal
		lastTotal, err := h.repo.GetLastUsageTotal(user.ID)
		if err == nil && lastTotal.Valid {
			increment = currentTotal - lastTotal.Int64
			if increment < 0 {
				increment = currentTotal
			}
		}

		_ = h.repo.CreateUsageSample(user.ID, increment, currentTotal, hourText, createdTime)
	}
}

func (h *Handler) sumUserTraffic(ctx context.Context, userID int64) (int64, error) {
	configs, err := h.repo.ListConfigsByUser(userID)
	if err != nil {
		return 0, err
	}

	var total int64
	for i := range configs {
		traffic, err := h.panel.ClientTraffic(ctx, configs[i].ClientEmail)
		if err != nil {
			return 0, err
		}
		total += traffic.Up + traffic.Down
	}
	return total, nil
}

func (h *Handler) runExpirySweepJob(ctx context.Context) {
	if h == nil || h.svc == nil {
		return
	}

	disabled, err := h.svc.DisableExpired(ctx)
	if err != nil {
		h.log.WithError(err).Warn("expiry sweep failed")
		return
	}
	if disabled > 0 {
		h.log.WithField("count", disabled).Info("disabled expired configs")
	}
}
