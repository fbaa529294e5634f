package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/coffee-counter/internal/config"
	"github.com/mamadbah2/coffee-counter/internal/repository/sheets"
	"github.com/mamadbah2/coffee-counter/internal/service/reporting"
	"github.com/mamadbah2/coffee-counter/pkg/clients/webhook"
)

const jobTimeout = 2 * time.Minute

// SummaryBuilder produces the weekly summary.
type SummaryBuilder interface {
	WeeklySummary(ctx context.Context, now time.Time) (reporting.Summary, error)
}

// Sink receives a built summary.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, summary reporting.Summary) error
}

// DeliveryRecorder is told the outcome of every delivery.
type DeliveryRecorder interface {
	SummaryDelivered(sink string, err error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	location *time.Location
	builder  SummaryBuilder
	sinks    []Sink
	recorder DeliveryRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewScheduler parses the report schedule in the configured timezone and
// registers the weekly summary job.
func NewScheduler(cfg config.ReportingConfig, builder SummaryBuilder, sinks []Sink, recorder DeliveryRecorder, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	schedule, err := cron.ParseStandard(cfg.CronSchedule)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.CronSchedule, err)
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		schedule: schedule,
		location: loc,
		builder:  builder,
		sinks:    sinks,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.sendWeeklySummary))
	return s, nil
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", zap.Int("sinks", len(s.sinks)), zap.String("timezone", s.location.String()))
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("stopping scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// Next returns the next run time after t in the scheduler's timezone.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}

// RunOnce builds the weekly summary and pushes it to every sink. Sink failures
// do not stop delivery to the others.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	summary, err := s.builder.WeeklySummary(ctx, s.now().In(s.location))
	if err != nil {
		return fmt.Errorf("build weekly summary: %w", err)
	}

	var errs []error
	for _, sink := range s.sinks {
		err := sink.Deliver(ctx, summary)
		if s.recorder != nil {
			s.recorder.SummaryDelivered(sink.Name(), err)
		}
		if err != nil {
			s.logger.Error("failed to deliver weekly summary", zap.String("sink", sink.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		s.logger.Info("weekly summary delivered", zap.String("sink", sink.Name()))
	}
	return errors.Join(errs...)
}

func (s *Scheduler) sendWeeklySummary() {
	s.logger.Info("generating weekly summary")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("weekly summary run failed", zap.Error(err))
	}
}

type webhookSink struct {
	notifier webhook.Notifier
}

// WebhookSink posts the summary text to a chat webhook.
func WebhookSink(notifier webhook.Notifier) Sink {
	return webhookSink{notifier: notifier}
}

func (webhookSink) Name() string { return "webhook" }

func (w webhookSink) Deliver(ctx context.Context, summary reporting.Summary) error {
	return w.notifier.Notify(ctx, summary.Text())
}

// SummaryAppender stores a summary row.
type SummaryAppender interface {
	AppendSummary(ctx context.Context, row sheets.SummaryRow) error
}

type sheetsSink struct {
	appender SummaryAppender
}

// SheetsSink appends the summary as a spreadsheet row.
func SheetsSink(appender SummaryAppender) Sink {
	return sheetsSink{appender: appender}
}

func (sheetsSink) Name() string { return "sheets" }

func (s sheetsSink) Deliver(ctx context.Context, summary reporting.Summary) error {
	return s.appender.AppendSummary(ctx, sheets.SummaryRow{
		WeekStart:  summary.WeekStart.String(),
		WeekEnd:    summary.WeekEnd.String(),
		Uses:       summary.Uses,
		ActiveBags: len(summary.ActiveBags),
		BagCount:   summary.Counts.BagCount,
		UseCount:   summary.Counts.UseCount,
	})
}
