package services

import (
	"context"
	"errors"

	"github.com/alakhotia160011/voxbharat-sub000/internal/models"
	mongorepo "github.com/alakhotia160011/voxbharat-sub000/internal/repositories/mongo"
	"github.com/alakhotia160011/voxbharat-sub000/internal/utils"
)

type CallArchiveService interface {
	SaveCall(ctx context.Context, rec *models.CallRecord) error
	Get(ctx context.Context, callID string) (*models.CallRecord, error)
	ListByCampaign(ctx context.Context, campaignID string, limit int64) ([]models.CallRecord, error)
}

type callArchiveService struct {
	calls mongorepo.CallRepository
}

func NewCallArchiveService(calls mongorepo.CallRepository) CallArchiveService {
	return &callArchiveService{calls: calls}
}

func (s *callArchiveService) SaveCall(ctx context.Context, rec *models.CallRecord) error {
	const op = "CallArchiveService.SaveCall"
	if rec == nil || rec.CallID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "call record requires a call_id", nil)
	}
	if err := s.calls.Save(ctx, rec); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to archive call", err)
	}
	return nil
}

func (s *callArchiveService) Get(ctx context.Context, callID string) (*models.CallRecord, error) {
	const op = "CallArchiveService.Get"
	if callID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}
	rec, err := s.calls.GetByCallID(ctx, callID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "call not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load call", err)
	}
	return rec, nil
}

func (s *callArchiveService) ListByCampaign(ctx context.Context, campaignID string, limit int64) ([]models.CallRecord, error) {
	const op = "CallArchiveService.ListByCampaign"
	if campaignID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "campaign_id is required", nil)
	}
	out, err := s.calls.ListByCampaign(ctx, campaignID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list calls", err)
	}
	return out, nil
}
