package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewsletterWorkflow/internal/config"
	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/ports"
)

// Scheduler turns each tick of the driver into one trigger per subscription.
type Scheduler struct {
	driver        ports.Scheduler
	dispatcher    *Dispatcher
	subscriptions []config.SubscriptionConfig
	interval      time.Duration
	location      *time.Location
	logger        *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring newsletters.
func NewScheduler(driver ports.Scheduler, dispatcher *Dispatcher, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		driver:        driver,
		dispatcher:    dispatcher,
		subscriptions: cfg.Subscriptions,
		interval:      cfg.Interval,
		location:      cfg.Location(),
		logger:        logger.With("component", "scheduler"),
	}
}

// Start registers the subscription job with the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.dispatcher == nil || len(s.subscriptions) == 0 {
		return nil
	}
	return s.driver.Start(ctx, s.Fire)
}

// Fire submits one trigger per subscription for the period containing tick.
func (s *Scheduler) Fire(tick time.Time) {
	for _, event := range s.Events(tick) {
		runID, err := s.dispatcher.Submit(event)
		if err != nil {
			s.logger.Error("scheduled trigger rejected", "trigger_id", event.ID, "error", err)
			continue
		}
		s.logger.Info("scheduled trigger submitted", "trigger_id", event.ID, "run_id", runID)
	}
}

// Events builds the trigger events for tick. Ticks within the same period
// produce the same event ids.
func (s *Scheduler) Events(tick time.Time) []domain.TriggerEvent {
	start := PeriodStart(tick, s.interval, s.location)
	events := make([]domain.TriggerEvent, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		events = append(events, domain.TriggerEvent{
			ID:         fmt.Sprintf("%s:%s", sub.Name, start.Format(time.RFC3339)),
			Categories: sub.Categories,
			Recipient:  sub.Email,
		})
	}
	return events
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}

// PeriodStart aligns tick to the start of its interval in loc. Intervals of a
// day or more align to local midnights counted from the Unix epoch.
func PeriodStart(tick time.Time, interval time.Duration, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := tick.In(loc)
	if interval <= 0 {
		return local
	}

	const day = 24 * time.Hour
	if interval < day {
		_, offset := local.Zone()
		shifted := local.Add(time.Duration(offset) * time.Second).UTC().Truncate(interval)
		return time.Date(shifted.Year(), shifted.Month(), shifted.Day(), shifted.Hour(), shifted.Minute(), shifted.Second(), 0, loc)
	}

	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	days := int64(interval / day)
	epochDays := midnight.Unix() / int64(day/time.Second)
	aligned := epochDays - epochDays%days
	start := time.Unix(aligned*int64(day/time.Second), 0).UTC()
	return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
}
