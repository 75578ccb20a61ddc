package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Anirudh7369/UFDR-Agent/internal/config"
	"github.com/Anirudh7369/UFDR-Agent/internal/models"
)

// MongoPublisher stores one document per job, updated atomically with
// $set/$inc so concurrent domain passes never clobber each other.
type MongoPublisher struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type mongoJobDoc struct {
	JobID     string                         `bson:"_id"`
	Domains   map[string]models.DomainStatus `bson:"domains"`
	CreatedAt time.Time                      `bson:"created_at"`
	UpdatedAt time.Time                      `bson:"updated_at"`
}

// NewMongoPublisher connects to MongoDB and verifies the connection.
func NewMongoPublisher(ctx context.Context, cfg config.ProgressConfig) (*MongoPublisher, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDBURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoPublisher{
		client: client,
		coll:   client.Database(cfg.MongoDatabase).Collection(cfg.TableName),
	}, nil
}

func (p *MongoPublisher) InitDomain(ctx context.Context, jobID, domain string) error {
	prefix := "domains." + domain + "."
	return p.set(ctx, jobID, bson.M{
		prefix + "status":    models.StatusPending,
		prefix + "total":     0,
		prefix + "processed": 0,
		prefix + "error":     "",
	})
}

func (p *MongoPublisher) SetStatus(ctx context.Context, jobID, domain, status string) error {
	return p.set(ctx, jobID, bson.M{"domains." + domain + ".status": status})
}

func (p *MongoPublisher) SetTotal(ctx context.Context, jobID, domain string, n int) error {
	return p.set(ctx, jobID, bson.M{"domains." + domain + ".total": n})
}

func (p *MongoPublisher) IncrementProcessed(ctx context.Context, jobID, domain string, n int) error {
	now := time.Now().UTC()
	_, err := p.coll.UpdateByID(ctx, jobID, bson.M{
		"$inc":         bson.M{"domains." + domain + ".processed": n},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to increment processed count: %w", err)
	}
	return nil
}

func (p *MongoPublisher) SetError(ctx context.Context, jobID, domain, message string) error {
	return p.set(ctx, jobID, bson.M{"domains." + domain + ".error": message})
}

func (p *MongoPublisher) Snapshot(ctx context.Context, jobID string) (*models.JobStatus, error) {
	var doc mongoJobDoc
	err := p.coll.FindOne(ctx, bson.M{"_id": jobID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	domains := make(map[string]models.DomainStatus, len(doc.Domains))
	for name, d := range doc.Domains {
		d.Extracted = d.Status == models.StatusCompleted && d.Processed > 0
		domains[name] = d
	}

	return &models.JobStatus{
		JobID:         doc.JobID,
		OverallStatus: models.DeriveOverall(domains),
		Domains:       domains,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}

func (p *MongoPublisher) Close(ctx context.Context) error {
	return p.client.Disconnect(ctx)
}

func (p *MongoPublisher) set(ctx context.Context, jobID string, fields bson.M) error {
	now := time.Now().UTC()
	fields["updated_at"] = now
	_, err := p.coll.UpdateByID(ctx, jobID, bson.M{
		"$set":         fields,
		"$setOnInsert": bson.M{"created_at": now},
	}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	return nil
}
