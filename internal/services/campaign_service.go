package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/alakhotia160011/voxbharat-sub000/internal/cache"
	"github.com/alakhotia160011/voxbharat-sub000/internal/campaign"
	"github.com/alakhotia160011/voxbharat-sub000/internal/models"
	"github.com/alakhotia160011/voxbharat-sub000/internal/repositories/postgres"
	"github.com/alakhotia160011/voxbharat-sub000/internal/utils"
)

type CreateCampaignInput struct {
	Name           string                 `json:"name"`
	Language       string                 `json:"language"`
	DetectLanguage bool                   `json:"detect_language"`
	VoiceGender    string                 `json:"voice_gender"`
	Concurrency    int                    `json:"concurrency"`
	MaxRetries     int                    `json:"max_retries"`
	CallingWindows []models.CallingWindow `json:"calling_windows"`
	Questions      []models.Question      `json:"questions"`
	Numbers        []string               `json:"numbers"`
}

type CampaignProgress struct {
	CampaignID string                `json:"campaign_id"`
	Status     models.CampaignStatus `json:"status"`
	Total      int                   `json:"total"`
	Completed  int                   `json:"completed"`
	Failed     int                   `json:"failed"`
	InFlight   int                   `json:"in_flight"`
}

type CampaignService interface {
	Create(ctx context.Context, in CreateCampaignInput) (*models.Campaign, error)
	Get(ctx context.Context, id string) (*models.Campaign, error)
	Start(ctx context.Context, id string) error
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	Progress(ctx context.Context, id string) (*CampaignProgress, error)

	// PublishProgress pushes live counters to the cache; wired as the
	// scheduler's progress callback.
	PublishProgress(campaignID string, completed, failed int)

	// RecoverInterrupted parks campaigns left running by an unclean
	// shutdown and frees their stuck numbers. Called once at boot.
	RecoverInterrupted(ctx context.Context) error
}

// DispatchControl is the slice of the scheduler the service drives;
// *campaign.Scheduler satisfies it.
type DispatchControl interface {
	Start(campaignID string)
	Stop(campaignID string)
	InFlight(campaignID string) int
}

var _ DispatchControl = (*campaign.Scheduler)(nil)

type campaignService struct {
	repo      postgres.CampaignRepository
	scheduler DispatchControl
	cache     cache.Cache
	log       *logrus.Logger
}

func NewCampaignService(repo postgres.CampaignRepository, sched DispatchControl, c cache.Cache, log *logrus.Logger) CampaignService {
	return &campaignService{repo: repo, scheduler: sched, cache: c, log: log}
}

func (s *campaignService) Create(ctx context.Context, in CreateCampaignInput) (*models.Campaign, error) {
	const op = "CampaignService.Create"

	if in.Name == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "name is required", nil)
	}
	if len(in.Questions) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "at least one question is required", nil)
	}
	if len(in.Numbers) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "at least one number is required", nil)
	}
	for _, w := range in.CallingWindows {
		if w.StartHour < 0 || w.EndHour > 24 || w.StartHour >= w.EndHour {
			return nil, utils.E(utils.CodeInvalidArgument, op, "calling window hours must satisfy 0 <= start < end <= 24", nil)
		}
	}
	if in.Language == "" {
		in.Language = "hi-IN"
	}
	if in.VoiceGender == "" {
		in.VoiceGender = "female"
	}
	if in.Concurrency <= 0 {
		in.Concurrency = 1
	}
	if in.MaxRetries < 0 {
		in.MaxRetries = 0
	}

	now := time.Now().UTC()
	c := &models.Campaign{
		ID:             uuid.NewString(),
		Name:           in.Name,
		Status:         models.CampaignPending,
		Language:       in.Language,
		DetectLanguage: in.DetectLanguage,
		VoiceGender:    in.VoiceGender,
		Concurrency:    in.Concurrency,
		MaxRetries:     in.MaxRetries,
		CallingWindows: datatypes.NewJSONType(in.CallingWindows),
		Questions:      datatypes.NewJSONType(in.Questions),
		TotalNumbers:   len(in.Numbers),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	numbers := make([]models.CampaignNumber, 0, len(in.Numbers))
	seen := map[string]bool{}
	for _, p := range in.Numbers {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		numbers = append(numbers, models.CampaignNumber{Phone: p})
	}
	c.TotalNumbers = len(numbers)

	if err := s.repo.Create(ctx, c, numbers); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create campaign", err)
	}
	s.log.WithFields(logrus.Fields{"campaign_id": c.ID, "numbers": len(numbers)}).Info("campaign created")
	return c, nil
}

func (s *campaignService) Get(ctx context.Context, id string) (*models.Campaign, error) {
	const op = "CampaignService.Get"
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "campaign not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load campaign", err)
	}
	return c, nil
}

func (s *campaignService) Start(ctx context.Context, id string) error {
	const op = "CampaignService.Start"
	return s.transition(ctx, op, id, models.CampaignRunning, models.CampaignPending)
}

func (s *campaignService) Pause(ctx context.Context, id string) error {
	const op = "CampaignService.Pause"
	return s.transition(ctx, op, id, models.CampaignPaused, models.CampaignRunning)
}

func (s *campaignService) Resume(ctx context.Context, id string) error {
	const op = "CampaignService.Resume"
	return s.transition(ctx, op, id, models.CampaignRunning, models.CampaignPaused)
}

func (s *campaignService) Cancel(ctx context.Context, id string) error {
	const op = "CampaignService.Cancel"
	return s.transition(ctx, op, id, models.CampaignCancelled,
		models.CampaignPending, models.CampaignRunning, models.CampaignPaused)
}

// transition validates the state change, persists it, and keeps the
// scheduler's runner in step with the stored status.
func (s *campaignService) transition(ctx context.Context, op, id string, to models.CampaignStatus, from ...models.CampaignStatus) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	allowed := false
	for _, f := range from {
		if c.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return utils.E(utils.CodeConflict, op,
			"campaign is "+string(c.Status)+", cannot move to "+string(to), nil)
	}

	if err := s.repo.SetCampaignStatus(ctx, id, to); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to update campaign status", err)
	}

	switch to {
	case models.CampaignRunning:
		s.scheduler.Start(id)
	default:
		s.scheduler.Stop(id)
	}

	s.log.WithFields(logrus.Fields{"campaign_id": id, "from": c.Status, "to": to}).Info("campaign transition")
	return nil
}

func (s *campaignService) Progress(ctx context.Context, id string) (*CampaignProgress, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CampaignProgress{
		CampaignID: c.ID,
		Status:     c.Status,
		Total:      c.TotalNumbers,
		Completed:  c.CompletedNumbers,
		Failed:     c.FailedNumbers,
		InFlight:   s.scheduler.InFlight(id),
	}, nil
}

func (s *campaignService) PublishProgress(campaignID string, completed, failed int) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p := CampaignProgress{
		CampaignID: campaignID,
		Completed:  completed,
		Failed:     failed,
		InFlight:   s.scheduler.InFlight(campaignID),
	}
	if err := s.cache.SetJSON(ctx, "campaign:"+campaignID+":progress", p, time.Hour); err != nil {
		s.log.WithError(err).Warn("progress publish failed")
	}
}

func (s *campaignService) RecoverInterrupted(ctx context.Context) error {
	const op = "CampaignService.RecoverInterrupted"

	running, err := s.repo.ListByStatus(ctx, models.CampaignRunning)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to list running campaigns", err)
	}

	for _, c := range running {
		if err := s.repo.SetCampaignStatus(ctx, c.ID, models.CampaignPaused); err != nil {
			return utils.E(utils.CodeInternal, op, "failed to pause campaign "+c.ID, err)
		}
		reset, err := s.repo.ResetInFlightNumbers(ctx, c.ID)
		if err != nil {
			return utils.E(utils.CodeInternal, op, "failed to reset numbers for "+c.ID, err)
		}
		s.log.WithFields(logrus.Fields{"campaign_id": c.ID, "reset_numbers": reset}).
			Warn("campaign paused after unclean shutdown; resume manually")
	}
	return nil
}
