package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"spadesk/internal/bizclock"

	"github.com/rs/zerolog"
)

// DocumentSender delivers a file to the managers.
type DocumentSender interface {
	SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error
}

// Scheduler sends the previous month's report shortly after midnight on the 1st.
type Scheduler struct {
	generator *Generator
	sender    DocumentSender
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewScheduler(g *Generator, sender DocumentSender, logger *zerolog.Logger) *Scheduler {
	return &Scheduler{generator: g, sender: sender, logger: logger, now: time.Now}
}

// Start runs until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for {
		next := nextRun(s.now())
		s.logger.Info().Time("at", next).Msg("Next monthly report scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		prev := bizclock.ScopeOf(next.AddDate(0, -1, 0))
		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		if err := s.Send(runCtx, prev.Key()); err != nil {
			s.logger.Error().Err(err).Str("scope", prev.Key()).Msg("Failed to send monthly report")
		}
		cancel()
	}
}

// Send renders the report of scope and hands it to the sender.
func (s *Scheduler) Send(ctx context.Context, scopeKey string) error {
	scope, err := bizclock.ParseScope(scopeKey)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := s.generator.Monthly(ctx, scope.Key(), &buf); err != nil {
		return err
	}
	caption := fmt.Sprintf("Monthly report %s", scope)
	if err := s.sender.SendDocument(ctx, Filename(scope), &buf, caption); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	s.logger.Info().Str("scope", scope.Key()).Msg("Monthly report sent")
	return nil
}

// nextRun is 00:05 local on the first day of the month after now.
func nextRun(now time.Time) time.Time {
	l := bizclock.Local(now)
	return time.Date(l.Year(), l.Month()+1, 1, 0, 5, 0, 0, bizclock.Location)
}
