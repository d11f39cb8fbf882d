// Package influx wraps the InfluxDB client as the PMDS time-series
// store described at the interface level in spec.md §6. Bucket
// lifecycle (lazy create with configured retention) is the one piece of
// "opaque" store behavior this package must still surface, since C6
// depends on it directly (spec.md §4.6).
package influx

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/config"
)

// Fixed bucket names for overlay outputs, per spec.md §4.6.
const (
	BucketDeployments              = "SERRANO_Deployments"
	BucketDeploymentsMetrics       = "SERRANO_Deployments_Metrics"
	BucketDeploymentsSpecificMetrics = "SERRANO_Deployments_Specific_Metrics"
)

// Store is a thin handle over one InfluxDB organization.
type Store struct {
	client      influxdb2.Client
	org         string
	retention   int64
	logger      *zap.Logger
	bucketsAPI  api.BucketsAPI
	orgsAPI     api.OrganizationsAPI

	knownBucketMu sync.Mutex
	knownBucket   map[string]bool
}

func Connect(cfg config.InfluxConfig, logger *zap.Logger) *Store {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Store{
		client:      client,
		org:         cfg.Org,
		retention:   cfg.BucketRetentionSeconds,
		logger:      logger,
		bucketsAPI:  client.BucketsAPI(),
		orgsAPI:     client.OrganizationsAPI(),
		knownBucket: make(map[string]bool),
	}
}

func (s *Store) Close() {
	s.client.Close()
}

// EnsureBucket lazily creates bucket with the store's configured
// retention if it does not already exist, matching spec.md §4.6
// ("Buckets are lazily created with the configured retention").
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	s.knownBucketMu.Lock()
	defer s.knownBucketMu.Unlock()

	if s.knownBucket[bucket] {
		return nil
	}
	existing, err := s.bucketsAPI.FindBucketByName(ctx, bucket)
	if err == nil && existing != nil {
		s.knownBucket[bucket] = true
		return nil
	}
	org, err := s.orgsAPI.FindOrganizationByName(ctx, s.org)
	if err != nil {
		return fmt.Errorf("resolve influx org %q: %w", s.org, err)
	}
	_, err = s.bucketsAPI.CreateBucketWithNameWithID(ctx, *org.Id, bucket, fmt.Sprintf("%ds", s.retention))
	if err != nil {
		s.logger.Error("create bucket failed", zap.String("bucket", bucket), zap.Error(err))
		return err
	}
	s.knownBucket[bucket] = true
	return nil
}

// WritePoint ensures bucket exists then writes one point synchronously,
// logging storage-write errors per spec.md §7 rather than retrying
// in-process.
func (s *Store) WritePoint(ctx context.Context, bucket, measurement string, tags map[string]string, fields map[string]any, ts time.Time) error {
	if err := s.EnsureBucket(ctx, bucket); err != nil {
		return err
	}
	writeAPI := s.client.WriteAPIBlocking(s.org, bucket)
	p := write.NewPoint(measurement, tags, fields, ts)
	if err := writeAPI.WritePoint(ctx, p); err != nil {
		s.logger.Error("pmds write failed", zap.String("bucket", bucket), zap.String("measurement", measurement), zap.Error(err))
		return err
	}
	return nil
}

// QueryAPI exposes the underlying Flux query façade for C10.
func (s *Store) QueryAPI() api.QueryAPI {
	return s.client.QueryAPI(s.org)
}
