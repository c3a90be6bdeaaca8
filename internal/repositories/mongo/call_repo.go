package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alakhotia160011/voxbharat-sub000/internal/models"
	"github.com/alakhotia160011/voxbharat-sub000/internal/utils"
)

type CallRepository interface {
	Save(ctx context.Context, rec *models.CallRecord) error
	GetByCallID(ctx context.Context, callID string) (*models.CallRecord, error)
	ListByCampaign(ctx context.Context, campaignID string, limit int64) ([]models.CallRecord, error)
}

type callRepo struct {
	col *mongo.Collection
}

func NewCallRepo(db *mongo.Database) CallRepository {
	return &callRepo{col: db.Collection("calls")}
}

// Save upserts by call id so a retried archive never duplicates the
// record.
func (r *callRepo) Save(ctx context.Context, rec *models.CallRecord) error {
	_, err := r.col.ReplaceOne(ctx,
		bson.M{"call_id": rec.CallID},
		rec,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *callRepo) GetByCallID(ctx context.Context, callID string) (*models.CallRecord, error) {
	var rec models.CallRecord
	err := r.col.FindOne(ctx, bson.M{"call_id": callID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &rec, err
}

func (r *callRepo) ListByCampaign(ctx context.Context, campaignID string, limit int64) ([]models.CallRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	cur, err := r.col.Find(ctx,
		bson.M{"campaign_id": campaignID},
		options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.CallRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
