// Package watch is the Watch-Time Tracker. A Session turns raw playback
// events for one video view into accumulated watch time and decides when to
// hand it to the reconciler. At most one report per Session is in flight.
package watch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/learnsync/internal/contentid"
	"github.com/tonimelisma/learnsync/internal/progress"
	"github.com/tonimelisma/learnsync/internal/session"
)

// DefaultMinReportInterval is the minimum wall-clock gap between periodic
// reports.
const DefaultMinReportInterval = 10 * time.Second

// resumeMargin: stored positions this close to the end are not resumed.
const resumeMargin = 10

// Reporter receives reporting decisions.
type Reporter interface {
	IsSignedIn() bool
	ReportVideoProgress(ctx context.Context, itemID contentid.ID, secondsWatched float64, lastSecondWatched int) (*progress.VideoOutcome, error)
}

// ShouldReport reports whether a report is due: either minInterval has
// elapsed since lastReported, or the position has reached the end of a
// video of known duration. Positions are whole seconds.
func ShouldReport(minInterval time.Duration, position, duration int, lastReported, now time.Time) bool {
	if now.Sub(lastReported) >= minInterval {
		return true
	}

	return duration > 0 && position >= duration
}

// ResumePosition returns where playback of item should start: its stored
// position, or 0 when nothing is stored or it is within resumeMargin seconds
// of the end.
func ResumePosition(item session.Item) int {
	if item.LastSecondWatched > 0 && item.LastSecondWatched+resumeMargin < item.Duration {
		return item.LastSecondWatched
	}

	return 0
}

// Session tracks one playback view of one video.
type Session struct {
	id          string
	itemID      contentid.ID
	reporter    Reporter
	minInterval *atomic.Int64 // the tracker's, in nanoseconds
	nowFunc     func() time.Time
	reportCtx   context.Context
	onReport    func(*progress.VideoOutcome, error)
	logger      *slog.Logger

	mu           sync.Mutex
	playing      bool
	lastResume   time.Time
	accumulated  time.Duration
	lastReported time.Time
	lastPosition int
	inFlight     bool
	endReported  bool
	closed       bool

	wg     sync.WaitGroup
	shared *sync.WaitGroup // the tracker's, spans all sessions
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// ItemID returns the video being watched.
func (s *Session) ItemID() contentid.ID {
	return s.itemID
}

// OnResumePlayback records the transition into playing. Repeated calls while
// already playing are ignored.
func (s *Session) OnResumePlayback() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.playing {
		return
	}

	s.playing = true
	s.lastResume = s.nowFunc()
}

// OnPausePlayback adds the time since the last resume to the accumulator.
// Repeated calls while already paused are ignored.
func (s *Session) OnPausePlayback() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.playing {
		return
	}

	s.foldLocked(s.nowFunc())
	s.playing = false
}

// OnTimeUpdate observes the playback position. Ignored unless playing. It
// may start an asynchronous report. Watch time gathered while signed out is
// dropped when the report would have been due.
func (s *Session) OnTimeUpdate(position, duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.playing {
		return
	}

	pos := truncSeconds(position)
	dur := truncSeconds(duration)
	now := s.nowFunc()

	s.lastPosition = pos
	s.foldLocked(now)

	atEnd := dur > 0 && pos >= dur
	if !atEnd {
		s.endReported = false
	}

	// The end counts once per arrival; after that only the timer applies.
	endDur := dur
	if s.endReported {
		endDur = 0
	}

	if !ShouldReport(time.Duration(s.minInterval.Load()), pos, endDur, s.lastReported, now) {
		return
	}

	if s.inFlight {
		// Coalesced: the accumulator keeps growing and the next trigger
		// after the in-flight report resolves carries it.
		s.logger.Debug("report coalesced",
			slog.String("session_id", s.id),
			slog.Int("position", pos),
		)

		return
	}

	delta := s.accumulated
	s.accumulated = 0
	s.lastReported = now

	if atEnd {
		s.endReported = true
	}

	if !s.reporter.IsSignedIn() {
		s.logger.Debug("report skipped, not signed in",
			slog.String("session_id", s.id),
			slog.Duration("dropped", delta),
		)

		return
	}

	s.inFlight = true
	s.wg.Add(1)
	s.shared.Add(1)

	go s.report(delta, pos)
}

// foldLocked moves the running play segment into the accumulator.
func (s *Session) foldLocked(now time.Time) {
	if elapsed := now.Sub(s.lastResume); elapsed > 0 {
		s.accumulated += elapsed
	}

	s.lastResume = now
}

func (s *Session) report(delta time.Duration, position int) {
	defer s.shared.Done()
	defer s.wg.Done()

	out, err := s.reporter.ReportVideoProgress(s.reportCtx, s.itemID, delta.Seconds(), position)

	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("watch report failed",
			slog.String("session_id", s.id),
			slog.String("item_id", s.itemID.String()),
			slog.Float64("seconds_watched", delta.Seconds()),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Debug("watch report done",
			slog.String("session_id", s.id),
			slog.Float64("seconds_watched", delta.Seconds()),
			slog.Int("position", position),
		)
	}

	if s.onReport != nil {
		s.onReport(out, err)
	}
}

// Accumulated returns watch time gathered since the last report, excluding
// the currently running segment.
func (s *Session) Accumulated() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.accumulated
}

// LastPosition returns the last observed whole-second position.
func (s *Session) LastPosition() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastPosition
}

// Playing reports whether the session is in the playing state.
func (s *Session) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.playing
}

// Close ends the view. Later events are ignored; a report already in flight
// still completes and merges.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	s.playing = false

	s.logger.Debug("watch session closed",
		slog.String("session_id", s.id),
		slog.Duration("unreported", s.accumulated),
	)
}

// Wait blocks until no report is in flight.
func (s *Session) Wait() {
	s.wg.Wait()
}

func truncSeconds(v float64) int {
	if v <= 0 {
		return 0
	}

	return int(v)
}

// Tracker opens Sessions with shared settings.
type Tracker struct {
	reporter    Reporter
	minInterval atomic.Int64
	reportCtx   context.Context
	logger      *slog.Logger
	nowFunc     func() time.Time

	reports sync.WaitGroup
}

// NewTracker creates a Tracker. Reports run under ctx, which must outlive
// individual views; a non-positive minInterval selects the default.
func NewTracker(ctx context.Context, reporter Reporter, minInterval time.Duration, logger *slog.Logger) *Tracker {
	if minInterval <= 0 {
		minInterval = DefaultMinReportInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		reporter:  reporter,
		reportCtx: ctx,
		logger:    logger,
		nowFunc:   time.Now,
	}
	t.minInterval.Store(int64(minInterval))

	return t
}

// SetMinInterval changes the report interval. Open sessions use it from
// their next time update.
func (t *Tracker) SetMinInterval(d time.Duration) {
	if d > 0 {
		t.minInterval.Store(int64(d))
	}
}

// Wait blocks until no report from any session is in flight. Callers stop
// feeding events first.
func (t *Tracker) Wait() {
	t.reports.Wait()
}

// Open starts a Session for itemID. onReport, when non-nil, is called after
// each report resolves.
func (t *Tracker) Open(itemID contentid.ID, onReport func(*progress.VideoOutcome, error)) *Session {
	now := t.nowFunc()

	s := &Session{
		id:           uuid.NewString(),
		itemID:       itemID,
		reporter:     t.reporter,
		minInterval:  &t.minInterval,
		nowFunc:      t.nowFunc,
		reportCtx:    t.reportCtx,
		onReport:     onReport,
		logger:       t.logger,
		shared:       &t.reports,
		lastReported: now,
		lastResume:   now,
	}

	t.logger.Debug("watch session opened",
		slog.String("session_id", s.id),
		slog.String("item_id", itemID.String()),
	)

	return s
}
