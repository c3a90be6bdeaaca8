// Package campaign batches outbound survey calls: a per-campaign
// dispatch loop bounded by the shared provider quota, gated by
// calling-hour windows, with randomized retry scheduling.
package campaign

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alakhotia160011/voxbharat-sub000/internal/models"
)

const (
	defaultStagger    = 2 * time.Second
	defaultPoll       = 60 * time.Second
	defaultWindowWait = time.Hour // cap so pause/cancel is noticed
)

// Store is the persistence surface the scheduler drives. The postgres
// repository implements it; tests use an in-memory fake.
type Store interface {
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
	SetCampaignStatus(ctx context.Context, id string, status models.CampaignStatus) error

	// NextPendingNumbers returns up to limit numbers that are ready to
	// dial at now: status pending with no retry time, or a retry time
	// that has passed.
	NextPendingNumbers(ctx context.Context, campaignID string, limit int, now time.Time) ([]models.CampaignNumber, error)
	// CountOutstanding returns how many numbers are ready now, how many
	// are parked on a future retry, and how many are on a live call.
	// The calling count is the store's view of in-flight work: it keeps
	// completion honest even after a pause/resume rebuilt the runner.
	CountOutstanding(ctx context.Context, campaignID string, now time.Time) (ready, waiting, calling int, err error)

	// MarkNumberCalling records a dispatch: status calling, the call id
	// (empty when initiation itself failed) and one more attempt.
	MarkNumberCalling(ctx context.Context, numberID uint, callID string) error
	MarkNumberOutcome(ctx context.Context, numberID uint, status models.NumberStatus, lastError string) error
	ScheduleNumberRetry(ctx context.Context, numberID uint, at time.Time, lastError string) error
	GetNumberByCallID(ctx context.Context, campaignID, callID string) (*models.CampaignNumber, error)

	IncrementProgress(ctx context.Context, campaignID string, completedDelta, failedDelta int) error
}

// InitiateFunc places one call and returns the engine's call id.
type InitiateFunc func(ctx context.Context, c *models.Campaign, number models.CampaignNumber) (callID string, err error)

// ProgressFunc is invoked after every recorded outcome, e.g. to
// publish live counters to a dashboard channel.
type ProgressFunc func(campaignID string, completed, failed int)

type Options struct {
	Stagger      time.Duration
	PollInterval time.Duration
	WindowWait   time.Duration
	Location     *time.Location
	Now          func() time.Time
	Rand         *rand.Rand
	OnProgress   ProgressFunc
}

type Scheduler struct {
	store    Store
	initiate InitiateFunc
	global   *Quota
	log      *logrus.Logger

	stagger    time.Duration
	poll       time.Duration
	windowWait time.Duration
	loc        *time.Location
	now        func() time.Time
	onProgress ProgressFunc

	randMu sync.Mutex
	rng    *rand.Rand

	mu      sync.Mutex
	runners map[string]*runner
}

type runner struct {
	cancel context.CancelFunc
	kick   chan struct{}

	mu       sync.Mutex
	inflight map[string]uint // call id -> number id
}

func (r *runner) addInflight(callID string, numberID uint) {
	r.mu.Lock()
	r.inflight[callID] = numberID
	r.mu.Unlock()
}

func (r *runner) removeInflight(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inflight[callID]; !ok {
		return false
	}
	delete(r.inflight, callID)
	return true
}

func (r *runner) inflightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

func (r *runner) wake() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

func NewScheduler(store Store, initiate InitiateFunc, global *Quota, log *logrus.Logger, opts Options) *Scheduler {
	if log == nil {
		log = logrus.New()
	}
	s := &Scheduler{
		store:      store,
		initiate:   initiate,
		global:     global,
		log:        log,
		stagger:    opts.Stagger,
		poll:       opts.PollInterval,
		windowWait: opts.WindowWait,
		loc:        opts.Location,
		now:        opts.Now,
		rng:        opts.Rand,
		onProgress: opts.OnProgress,
		runners:    make(map[string]*runner),
	}
	if s.stagger == 0 {
		s.stagger = defaultStagger
	}
	if s.poll == 0 {
		s.poll = defaultPoll
	}
	if s.windowWait == 0 {
		s.windowWait = defaultWindowWait
	}
	if s.loc == nil {
		s.loc = time.FixedZone("IST", int(5*time.Hour+30*time.Minute)/int(time.Second))
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

// Global exposes the shared provider quota so non-campaign call paths
// respect the same ceiling.
func (s *Scheduler) Global() *Quota { return s.global }

func (s *Scheduler) localNow() time.Time { return s.now().In(s.loc) }

func (s *Scheduler) randRetry(now time.Time, windows []models.CallingWindow) time.Time {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return RetryTime(now, windows, s.rng)
}

// Start launches (or re-launches) the dispatch loop for a campaign
// already transitioned to running by the service layer.
func (s *Scheduler) Start(campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runners[campaignID]; exists {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{
		cancel:   cancel,
		kick:     make(chan struct{}, 1),
		inflight: make(map[string]uint),
	}
	s.runners[campaignID] = r
	go s.runLoop(ctx, campaignID, r)
}

// Stop halts dispatch for a campaign; in-flight calls finish
// naturally and still report through OnCallCompleted.
func (s *Scheduler) Stop(campaignID string) {
	s.mu.Lock()
	r, ok := s.runners[campaignID]
	if ok {
		delete(s.runners, campaignID)
	}
	s.mu.Unlock()
	if ok {
		r.cancel()
	}
}

func (s *Scheduler) runnerFor(campaignID string) *runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runners[campaignID]
}

// InFlight reports how many calls the campaign currently has out.
func (s *Scheduler) InFlight(campaignID string) int {
	if r := s.runnerFor(campaignID); r != nil {
		return r.inflightCount()
	}
	return 0
}

func (s *Scheduler) runLoop(ctx context.Context, campaignID string, r *runner) {
	log := s.log.WithField("campaign_id", campaignID)
	log.Info("campaign dispatch loop started")
	defer log.Info("campaign dispatch loop stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		c, err := s.store.GetCampaign(ctx, campaignID)
		if err != nil {
			log.WithError(err).Error("campaign load failed, backing off")
			if !s.wait(ctx, r, s.poll) {
				return
			}
			continue
		}
		if c.Status != models.CampaignRunning {
			return
		}

		now := s.localNow()
		windows := c.CallingWindows.Data()

		if !InWindow(now, windows) {
			wait := NextOpen(now, windows).Sub(now)
			if wait > s.windowWait {
				wait = s.windowWait
			}
			log.WithField("wait", wait.String()).Debug("outside calling window")
			if !s.wait(ctx, r, wait) {
				return
			}
			continue
		}

		slots := s.global.Available()
		if cs := c.Concurrency - r.inflightCount(); cs < slots {
			slots = cs
		}
		if slots <= 0 {
			if !s.wait(ctx, r, s.poll) {
				return
			}
			continue
		}

		numbers, err := s.store.NextPendingNumbers(ctx, campaignID, slots, now)
		if err != nil {
			log.WithError(err).Error("pending number fetch failed")
			if !s.wait(ctx, r, s.poll) {
				return
			}
			continue
		}

		if len(numbers) == 0 {
			if done := s.maybeComplete(ctx, campaignID, r); done {
				return
			}
			// numbers may be parked on future retries; poll rather
			// than busy-spin
			if !s.wait(ctx, r, s.poll) {
				return
			}
			continue
		}

		for i, num := range numbers {
			if ctx.Err() != nil {
				return
			}
			if !s.global.TryAcquire() {
				break
			}
			s.dispatchOne(ctx, c, num, r, log)

			// stagger dispatches so the provider never sees a burst
			if i < len(numbers)-1 && !s.wait(ctx, r, s.stagger) {
				return
			}
		}
	}
}

// dispatchOne places a single call; its errors are contained so one
// bad number never aborts the batch. The quota slot is already held
// and is released on failure.
func (s *Scheduler) dispatchOne(ctx context.Context, c *models.Campaign, num models.CampaignNumber, r *runner, log *logrus.Entry) {
	callID, err := s.initiate(ctx, c, num)
	if err != nil {
		s.global.Release()
		log.WithError(err).WithField("phone", num.Phone).Warn("call initiation failed")

		// the dispatch consumed an attempt even though no call went out
		if merr := s.store.MarkNumberCalling(ctx, num.ID, ""); merr != nil {
			log.WithError(merr).Error("attempt count update failed")
		}
		num.Attempts++
		s.recordFailedAttempt(ctx, c, num, err.Error())
		return
	}

	r.addInflight(callID, num.ID)
	if err := s.store.MarkNumberCalling(ctx, num.ID, callID); err != nil {
		log.WithError(err).Error("number status update failed")
	}
	log.WithFields(logrus.Fields{"phone": num.Phone, "call_id": callID}).Info("call dispatched")
}

// recordFailedAttempt applies the retry policy to a dispatch that
// never produced a live call. num.Attempts already reflects the
// consumed attempt.
func (s *Scheduler) recordFailedAttempt(ctx context.Context, c *models.Campaign, num models.CampaignNumber, cause string) {
	if num.Attempts <= c.MaxRetries {
		at := s.randRetry(s.localNow(), c.CallingWindows.Data())
		if err := s.store.ScheduleNumberRetry(ctx, num.ID, at, cause); err != nil {
			s.log.WithError(err).Error("retry scheduling failed")
		}
		return
	}
	if err := s.store.MarkNumberOutcome(ctx, num.ID, models.NumberFailed, cause); err != nil {
		s.log.WithError(err).Error("number outcome update failed")
	}
	if err := s.store.IncrementProgress(ctx, c.ID, 0, 1); err != nil {
		s.log.WithError(err).Error("progress update failed")
	}
}

// OnCallCompleted records a finished call's outcome, requeues the
// number if the outcome is retryable and attempts remain, and wakes
// the dispatch loop.
func (s *Scheduler) OnCallCompleted(ctx context.Context, callID, campaignID string, status models.CallStatus) {
	log := s.log.WithFields(logrus.Fields{"campaign_id": campaignID, "call_id": callID, "status": status})

	// the quota slot is held from dispatch until the call ends, even
	// across a pause/restart that rebuilt the runner
	r := s.runnerFor(campaignID)
	if r != nil {
		r.removeInflight(callID)
	}
	s.global.Release()

	c, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		log.WithError(err).Error("campaign load failed in completion handler")
		return
	}

	num, err := s.store.GetNumberByCallID(ctx, campaignID, callID)
	if err != nil {
		log.WithError(err).Error("number lookup failed in completion handler")
		return
	}

	if models.RetryableOutcome(status) && num.Attempts <= c.MaxRetries {
		at := s.randRetry(s.localNow(), c.CallingWindows.Data())
		if err := s.store.ScheduleNumberRetry(ctx, num.ID, at, string(status)); err != nil {
			log.WithError(err).Error("retry scheduling failed")
		} else {
			log.WithField("retry_at", at).Info("number requeued")
		}
	} else {
		outcome, completedDelta, failedDelta := terminalOutcome(status)
		if err := s.store.MarkNumberOutcome(ctx, num.ID, outcome, string(status)); err != nil {
			log.WithError(err).Error("number outcome update failed")
		}
		if err := s.store.IncrementProgress(ctx, campaignID, completedDelta, failedDelta); err != nil {
			log.WithError(err).Error("progress update failed")
		}
		if s.onProgress != nil {
			if fresh, err := s.store.GetCampaign(ctx, campaignID); err == nil {
				s.onProgress(campaignID, fresh.CompletedNumbers, fresh.FailedNumbers)
			}
		}
	}

	if r != nil {
		r.wake()
		s.maybeComplete(ctx, campaignID, r)
	}
}

func terminalOutcome(status models.CallStatus) (models.NumberStatus, int, int) {
	switch status {
	case models.CallCompleted, models.CallSaved:
		return models.NumberCompleted, 1, 0
	case models.CallNoAnswer:
		return models.NumberNoAnswer, 0, 1
	default:
		return models.NumberFailed, 0, 1
	}
}

// maybeComplete marks the campaign completed once nothing is pending,
// parked, or in flight. In-flight is judged from the store, not just
// the runner's map: a pause/resume rebuilds the runner empty while
// its calls are still live.
func (s *Scheduler) maybeComplete(ctx context.Context, campaignID string, r *runner) bool {
	ready, waiting, calling, err := s.store.CountOutstanding(ctx, campaignID, s.localNow())
	if err != nil {
		s.log.WithError(err).Error("outstanding count failed")
		return false
	}
	if ready > 0 || waiting > 0 || calling > 0 || r.inflightCount() > 0 {
		return false
	}

	if err := s.store.SetCampaignStatus(ctx, campaignID, models.CampaignCompleted); err != nil {
		s.log.WithError(err).Error("campaign completion update failed")
		return false
	}
	s.log.WithField("campaign_id", campaignID).Info("campaign completed")
	s.Stop(campaignID)
	return true
}

// wait sleeps for d but returns early on a wake-up kick; false means
// the loop should exit.
func (s *Scheduler) wait(ctx context.Context, r *runner, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-r.kick:
		return true
	case <-t.C:
		return true
	}
}
