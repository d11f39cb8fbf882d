// Package mongo wraps the MongoDB driver as the operational document
// store described at the interface level in spec.md §6. Schema and
// migration concerns are explicitly out of scope (spec.md §1); this
// package exposes the collection names and a thin set of CRUD helpers
// that every data-engine component builds on, mirroring the teacher's
// thin-wrapper client pattern (internal/redis/client.go).
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/config"
)

// Collection names, per spec.md §6's persistent state layout.
const (
	CollEntities                    = "entities"
	CollClusters                    = "clusters"
	CollClusterStateMetrics         = "cluster_state_metrics"
	CollEdgeStorage                 = "edge_storage"
	CollEdgeStorageMetrics          = "edge_storage_metrics"
	CollClusterDeploymentMetrics    = "cluster_deployment_metrics"
	CollSerranoDeployments          = "serrano_deployments"
	CollDeploymentsSpecificMetrics  = "deployments_specific_metrics"
	CollSerranoKernels              = "serrano_kernels"
	CollSerranoKernelDeployments    = "serrano_kernel_deployments"
	CollSerranoKernelMetrics        = "serrano_kernel_metrics"
	CollCloudStorageLocations       = "cloud_storage_locations"
	CollApplicationMetrics          = "application_metrics"
)

// Store is a thin handle over one Mongo database shared by every
// data-engine component.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// Connect dials the operational store and verifies connectivity.
func Connect(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to operational store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping operational store: %w", err)
	}

	logger.Info("connected to operational store", zap.String("database", cfg.Database))

	return &Store{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger,
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// Upsert replaces the single document matching filter with doc,
// creating it if absent.
func (s *Store) Upsert(ctx context.Context, coll string, filter, doc bson.M) error {
	_, err := s.Collection(coll).ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		s.logger.Error("upsert failed", zap.String("collection", coll), zap.Error(err))
	}
	return err
}

// InsertOne inserts doc; on failure it logs the error and also returns
// it, leaving the caller to decide whether to continue.
func (s *Store) InsertOne(ctx context.Context, coll string, doc any) error {
	_, err := s.Collection(coll).InsertOne(ctx, doc)
	if err != nil {
		s.logger.Error("insert failed", zap.String("collection", coll), zap.Error(err))
	}
	return err
}

func (s *Store) InsertMany(ctx context.Context, coll string, docs []any) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := s.Collection(coll).InsertMany(ctx, docs)
	if err != nil {
		s.logger.Error("bulk insert failed", zap.String("collection", coll), zap.Error(err))
	}
	return err
}

func (s *Store) DeleteMany(ctx context.Context, coll string, filter bson.M) error {
	_, err := s.Collection(coll).DeleteMany(ctx, filter)
	if err != nil {
		s.logger.Error("delete failed", zap.String("collection", coll), zap.Error(err))
	}
	return err
}

func (s *Store) FindOne(ctx context.Context, coll string, filter bson.M, out any) error {
	return s.Collection(coll).FindOne(ctx, filter).Decode(out)
}

// PurgeOlderThan deletes rows with timestamp older than now-retain from
// coll, matching any extra filter fields — the "purge" half of the
// purge-then-insert retention pattern in spec.md §4.5/§5.
func (s *Store) PurgeOlderThan(ctx context.Context, coll string, retain time.Duration, extra bson.M) error {
	filter := bson.M{"timestamp": bson.M{"$lt": time.Now().Add(-retain)}}
	for k, v := range extra {
		filter[k] = v
	}
	return s.DeleteMany(ctx, coll, filter)
}

// IsNoDocuments reports whether err is mongo's not-found sentinel.
func IsNoDocuments(err error) bool {
	return err == mongo.ErrNoDocuments
}
