package config

import (
	"context"
	"errors"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureMongoIndexes() error {
	if MongoClient == nil {
		return errors.New("MongoClient is nil; call InitMongo() first")
	}

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "voxbharat"
	}
	db := MongoClient.Database(dbName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	calls := db.Collection("calls")
	_, err := calls.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// archival is an upsert by call id
		{
			Keys: bson.D{{Key: "call_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_call_id").
				SetUnique(true),
		},
		// campaign result listing, newest first
		{
			Keys:    bson.D{{Key: "campaign_id", Value: 1}, {Key: "started_at", Value: -1}},
			Options: options.Index().SetName("by_campaign_started"),
		},
		{
			Keys:    bson.D{{Key: "phone", Value: 1}, {Key: "started_at", Value: -1}},
			Options: options.Index().SetName("by_phone_started"),
		},
	})
	return err
}
