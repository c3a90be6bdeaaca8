package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alakhotia160011/voxbharat-sub000/internal/models"
	"github.com/alakhotia160011/voxbharat-sub000/internal/utils"
)

type stubRepo struct {
	mu        sync.Mutex
	campaigns map[string]*models.Campaign
	numbers   map[string][]models.CampaignNumber
	resets    []string
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		campaigns: map[string]*models.Campaign{},
		numbers:   map[string][]models.CampaignNumber{},
	}
}

func (r *stubRepo) Create(_ context.Context, c *models.Campaign, numbers []models.CampaignNumber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
	r.numbers[c.ID] = numbers
	return nil
}

func (r *stubRepo) GetCampaign(_ context.Context, id string) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *stubRepo) ListByStatus(_ context.Context, statuses ...models.CampaignStatus) ([]models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Campaign
	for _, c := range r.campaigns {
		for _, st := range statuses {
			if c.Status == st {
				out = append(out, *c)
			}
		}
	}
	return out, nil
}

func (r *stubRepo) SetCampaignStatus(_ context.Context, id string, status models.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return utils.ErrNotFound
	}
	c.Status = status
	return nil
}

func (r *stubRepo) NextPendingNumbers(context.Context, string, int, time.Time) ([]models.CampaignNumber, error) {
	return nil, nil
}

func (r *stubRepo) CountOutstanding(context.Context, string, time.Time) (int, int, int, error) {
	return 0, 0, 0, nil
}

func (r *stubRepo) MarkNumberCalling(context.Context, uint, string) error { return nil }

func (r *stubRepo) MarkNumberOutcome(context.Context, uint, models.NumberStatus, string) error {
	return nil
}

func (r *stubRepo) ScheduleNumberRetry(context.Context, uint, time.Time, string) error { return nil }

func (r *stubRepo) GetNumberByCallID(context.Context, string, string) (*models.CampaignNumber, error) {
	return nil, utils.ErrNotFound
}

func (r *stubRepo) IncrementProgress(context.Context, string, int, int) error { return nil }

func (r *stubRepo) ResetInFlightNumbers(_ context.Context, campaignID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, campaignID)
	return 2, nil
}

type stubDispatch struct {
	mu      sync.Mutex
	started []string
	stopped []string
}

func (d *stubDispatch) Start(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = append(d.started, id)
}

func (d *stubDispatch) Stop(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = append(d.stopped, id)
}

func (d *stubDispatch) InFlight(string) int { return 0 }

func newTestService() (CampaignService, *stubRepo, *stubDispatch) {
	repo := newStubRepo()
	disp := &stubDispatch{}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewCampaignService(repo, disp, nil, log), repo, disp
}

func seedCampaign(t *testing.T, svc CampaignService) *models.Campaign {
	t.Helper()
	c, err := svc.Create(context.Background(), CreateCampaignInput{
		Name:      "monsoon poll",
		Questions: []models.Question{{ID: "q0", Type: "open", Prompt: "Baarish se fasal par kya asar pada?"}},
		Numbers:   []string{"+919800000001", "+919800000002"},
	})
	require.NoError(t, err)
	return c
}

func TestCreateCampaignValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateCampaignInput
	}{
		{"missing name", CreateCampaignInput{
			Questions: []models.Question{{Prompt: "q"}}, Numbers: []string{"+91980"},
		}},
		{"no questions", CreateCampaignInput{
			Name: "x", Numbers: []string{"+91980"},
		}},
		{"no numbers", CreateCampaignInput{
			Name: "x", Questions: []models.Question{{Prompt: "q"}},
		}},
		{"inverted window", CreateCampaignInput{
			Name: "x", Questions: []models.Question{{Prompt: "q"}}, Numbers: []string{"+91980"},
			CallingWindows: []models.CallingWindow{{StartHour: 14, EndHour: 10}},
		}},
		{"window past midnight", CreateCampaignInput{
			Name: "x", Questions: []models.Question{{Prompt: "q"}}, Numbers: []string{"+91980"},
			CallingWindows: []models.CallingWindow{{StartHour: 20, EndHour: 25}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.in)
			assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument), "got %v", err)
		})
	}
}

func TestCreateCampaignDeduplicatesNumbers(t *testing.T) {
	svc, repo, _ := newTestService()

	c, err := svc.Create(context.Background(), CreateCampaignInput{
		Name:      "dedupe",
		Questions: []models.Question{{Prompt: "q"}},
		Numbers:   []string{"+911", "+911", "", "+912"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, c.TotalNumbers)
	assert.Len(t, repo.numbers[c.ID], 2)
	assert.Equal(t, models.CampaignPending, c.Status)
}

func TestCampaignTransitions(t *testing.T) {
	type move struct {
		name string
		do   func(svc CampaignService, id string) error
	}
	start := move{"start", func(s CampaignService, id string) error { return s.Start(context.Background(), id) }}
	pause := move{"pause", func(s CampaignService, id string) error { return s.Pause(context.Background(), id) }}
	resume := move{"resume", func(s CampaignService, id string) error { return s.Resume(context.Background(), id) }}
	cancel := move{"cancel", func(s CampaignService, id string) error { return s.Cancel(context.Background(), id) }}

	cases := []struct {
		from    models.CampaignStatus
		mv      move
		ok      bool
		becomes models.CampaignStatus
	}{
		{models.CampaignPending, start, true, models.CampaignRunning},
		{models.CampaignPending, pause, false, ""},
		{models.CampaignPending, resume, false, ""},
		{models.CampaignPending, cancel, true, models.CampaignCancelled},
		{models.CampaignRunning, start, false, ""},
		{models.CampaignRunning, pause, true, models.CampaignPaused},
		{models.CampaignRunning, resume, false, ""},
		{models.CampaignRunning, cancel, true, models.CampaignCancelled},
		{models.CampaignPaused, start, false, ""},
		{models.CampaignPaused, resume, true, models.CampaignRunning},
		{models.CampaignPaused, cancel, true, models.CampaignCancelled},
		{models.CampaignCompleted, start, false, ""},
		{models.CampaignCompleted, cancel, false, ""},
		{models.CampaignCancelled, resume, false, ""},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"_"+tc.mv.name, func(t *testing.T) {
			svc, repo, _ := newTestService()
			c := seedCampaign(t, svc)
			require.NoError(t, repo.SetCampaignStatus(context.Background(), c.ID, tc.from))

			err := tc.mv.do(svc, c.ID)
			if !tc.ok {
				assert.True(t, utils.IsCode(err, utils.CodeConflict), "got %v", err)
				return
			}
			require.NoError(t, err)
			fresh, err := repo.GetCampaign(context.Background(), c.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.becomes, fresh.Status)
		})
	}
}

func TestTransitionsDriveScheduler(t *testing.T) {
	svc, _, disp := newTestService()
	c := seedCampaign(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx, c.ID))
	require.NoError(t, svc.Pause(ctx, c.ID))
	require.NoError(t, svc.Resume(ctx, c.ID))
	require.NoError(t, svc.Cancel(ctx, c.ID))

	disp.mu.Lock()
	defer disp.mu.Unlock()
	assert.Equal(t, []string{c.ID, c.ID}, disp.started)
	assert.Equal(t, []string{c.ID, c.ID}, disp.stopped)
}

func TestUnknownCampaignIsNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.Start(context.Background(), "nope")
	assert.True(t, utils.IsCode(err, utils.CodeNotFound), "got %v", err)
}

func TestRecoverInterrupted(t *testing.T) {
	svc, repo, _ := newTestService()
	a := seedCampaign(t, svc)
	b := seedCampaign(t, svc)
	ctx := context.Background()

	require.NoError(t, repo.SetCampaignStatus(ctx, a.ID, models.CampaignRunning))
	require.NoError(t, repo.SetCampaignStatus(ctx, b.ID, models.CampaignCompleted))

	require.NoError(t, svc.RecoverInterrupted(ctx))

	fresh, err := repo.GetCampaign(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignPaused, fresh.Status)
	assert.Equal(t, []string{a.ID}, repo.resets)

	untouched, err := repo.GetCampaign(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignCompleted, untouched.Status)
}
