package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/alakhotia160011/voxbharat-sub000/internal/models"
	"github.com/alakhotia160011/voxbharat-sub000/internal/utils"
)

type CampaignRepository interface {
	Create(ctx context.Context, c *models.Campaign, numbers []models.CampaignNumber) error
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
	ListByStatus(ctx context.Context, statuses ...models.CampaignStatus) ([]models.Campaign, error)
	SetCampaignStatus(ctx context.Context, id string, status models.CampaignStatus) error

	NextPendingNumbers(ctx context.Context, campaignID string, limit int, now time.Time) ([]models.CampaignNumber, error)
	CountOutstanding(ctx context.Context, campaignID string, now time.Time) (ready, waiting, calling int, err error)
	MarkNumberCalling(ctx context.Context, numberID uint, callID string) error
	MarkNumberOutcome(ctx context.Context, numberID uint, status models.NumberStatus, lastError string) error
	ScheduleNumberRetry(ctx context.Context, numberID uint, at time.Time, lastError string) error
	GetNumberByCallID(ctx context.Context, campaignID, callID string) (*models.CampaignNumber, error)
	IncrementProgress(ctx context.Context, campaignID string, completedDelta, failedDelta int) error

	// ResetInFlightNumbers returns numbers stuck in calling back to
	// pending, used on boot after an unclean shutdown.
	ResetInFlightNumbers(ctx context.Context, campaignID string) (int64, error)
}

type campaignRepo struct {
	db *gorm.DB
}

func NewCampaignRepo(db *gorm.DB) CampaignRepository {
	return &campaignRepo{db: db}
}

func (r *campaignRepo) Create(ctx context.Context, c *models.Campaign, numbers []models.CampaignNumber) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		for i := range numbers {
			numbers[i].CampaignID = c.ID
			numbers[i].Status = models.NumberPending
		}
		return tx.CreateInBatches(numbers, 500).Error
	})
}

func (r *campaignRepo) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	var c models.Campaign
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &c, err
}

func (r *campaignRepo) ListByStatus(ctx context.Context, statuses ...models.CampaignStatus) ([]models.Campaign, error) {
	var out []models.Campaign
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at").
		Find(&out).Error
	return out, err
}

func (r *campaignRepo) SetCampaignStatus(ctx context.Context, id string, status models.CampaignStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *campaignRepo) NextPendingNumbers(ctx context.Context, campaignID string, limit int, now time.Time) ([]models.CampaignNumber, error) {
	var out []models.CampaignNumber
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ?", campaignID, models.NumberPending).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("id").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *campaignRepo) CountOutstanding(ctx context.Context, campaignID string, now time.Time) (int, int, int, error) {
	var ready, waiting, calling int64
	base := r.db.WithContext(ctx).
		Model(&models.CampaignNumber{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.NumberPending)

	if err := base.Session(&gorm.Session{}).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Count(&ready).Error; err != nil {
		return 0, 0, 0, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("next_retry_at > ?", now).
		Count(&waiting).Error; err != nil {
		return 0, 0, 0, err
	}
	if err := r.db.WithContext(ctx).
		Model(&models.CampaignNumber{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.NumberCalling).
		Count(&calling).Error; err != nil {
		return 0, 0, 0, err
	}
	return int(ready), int(waiting), int(calling), nil
}

func (r *campaignRepo) MarkNumberCalling(ctx context.Context, numberID uint, callID string) error {
	return r.db.WithContext(ctx).
		Model(&models.CampaignNumber{}).
		Where("id = ?", numberID).
		Updates(map[string]any{
			"status":        models.NumberCalling,
			"call_id":       callID,
			"attempts":      gorm.Expr("attempts + 1"),
			"next_retry_at": nil,
		}).Error
}

func (r *campaignRepo) MarkNumberOutcome(ctx context.Context, numberID uint, status models.NumberStatus, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&models.CampaignNumber{}).
		Where("id = ?", numberID).
		Updates(map[string]any{
			"status":     status,
			"last_error": lastError,
		}).Error
}

func (r *campaignRepo) ScheduleNumberRetry(ctx context.Context, numberID uint, at time.Time, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&models.CampaignNumber{}).
		Where("id = ?", numberID).
		Updates(map[string]any{
			"status":        models.NumberPending,
			"next_retry_at": at,
			"last_error":    lastError,
		}).Error
}

func (r *campaignRepo) GetNumberByCallID(ctx context.Context, campaignID, callID string) (*models.CampaignNumber, error) {
	var n models.CampaignNumber
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND call_id = ?", campaignID, callID).
		Take(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &n, err
}

func (r *campaignRepo) IncrementProgress(ctx context.Context, campaignID string, completedDelta, failedDelta int) error {
	return r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Updates(map[string]any{
			"completed_numbers": gorm.Expr("completed_numbers + ?", completedDelta),
			"failed_numbers":    gorm.Expr("failed_numbers + ?", failedDelta),
		}).Error
}

func (r *campaignRepo) ResetInFlightNumbers(ctx context.Context, campaignID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CampaignNumber{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.NumberCalling).
		Updates(map[string]any{
			"status":  models.NumberPending,
			"call_id": "",
		})
	return res.RowsAffected, res.Error
}
