package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"iot-tier-pipeline/src/aggregator"
	"iot-tier-pipeline/src/api"
	"iot-tier-pipeline/src/classifier"
	"iot-tier-pipeline/src/config"
	"iot-tier-pipeline/src/metrics"
	"iot-tier-pipeline/src/storage"
	"iot-tier-pipeline/src/trigger"
	"iot-tier-pipeline/src/types"
	"iot-tier-pipeline/src/utils"
)

var ErrBucketRequired = errors.New("storage.bucket is required")

// Pipeline holds the collaborators and stages built from one configuration.
type Pipeline struct {
	Config     *config.Config
	Store      storage.Store
	Metrics    metrics.Emitter
	Classifier *classifier.Stage
	Aggregator *aggregator.Stage
	Trigger    *trigger.Handler
	API        *api.Handler
}

func New(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	store, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}

	emitter, err := NewEmitter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return Assemble(cfg, store, emitter), nil
}

// Assemble wires the stages around an existing store and emitter.
func Assemble(cfg *config.Config, store storage.Store, emitter metrics.Emitter) *Pipeline {
	threshold := cfg.Pipeline.AnomalyThreshold

	c := classifier.New(store, emitter, cfg.StageNamespace(classifier.StageName), threshold)
	a := aggregator.New(store, emitter, cfg.StageNamespace(aggregator.StageName), threshold)

	return &Pipeline{
		Config:     cfg,
		Store:      store,
		Metrics:    emitter,
		Classifier: c,
		Aggregator: a,
		Trigger:    trigger.NewHandler(c, a, cfg.Pipeline.Stage),
		API:        api.NewHandler(store, cfg.Storage.Bucket),
	}
}

func NewStore(cfg *config.Config) (storage.Store, error) {
	s := cfg.Storage

	switch s.Backend {
	case config.StorageMinio:
		client, err := storage.NewMinioClient(s.Endpoint, s.AccessKey, s.SecretKey, s.UseSSL)
		if err != nil {
			return nil, err
		}
		log.Printf("Using MinIO storage at %s", s.Endpoint)
		return storage.NewMinioStore(client), nil

	case config.StorageMemory:
		log.Println("Using in-memory storage")
		return storage.NewMemoryStore(), nil

	case config.StorageS3:
		client, err := storage.NewS3Client(storage.S3ClientConfig{
			Region:    cfg.AWS.Region,
			Endpoint:  s.Endpoint,
			AccessKey: s.AccessKey,
			SecretKey: s.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return storage.NewS3Store(client), nil

	default:
		return nil, fmt.Errorf("unknown storage.backend %q", s.Backend)
	}
}

func NewEmitter(ctx context.Context, cfg *config.Config) (metrics.Emitter, error) {
	switch cfg.Metrics.Backend {
	case config.MetricsCloudWatch:
		client, err := metrics.NewCloudWatchClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		return metrics.NewCloudWatchEmitter(client), nil

	case config.MetricsLog:
		return metrics.LogEmitter{}, nil

	case config.MetricsNone:
		return metrics.NopEmitter{}, nil

	default:
		return nil, fmt.Errorf("unknown metrics.backend %q", cfg.Metrics.Backend)
	}
}

// Reprocess runs the stage owning tier over every tabular object under
// tier+prefix, one at a time. Outputs are overwritten.
func (p *Pipeline) Reprocess(ctx context.Context, tier, prefix string) (types.BatchResult, error) {
	bucket := p.Config.Storage.Bucket
	if bucket == "" {
		return types.BatchResult{}, ErrBucketRequired
	}

	if tier != types.TierBronze && tier != types.TierSilver {
		return types.BatchResult{}, fmt.Errorf("cannot reprocess tier %q: only %s and %s feed a stage", tier, types.TierBronze, types.TierSilver)
	}

	objects, err := p.Store.List(ctx, bucket, tier+prefix)
	if err != nil {
		return types.BatchResult{}, fmt.Errorf("failed to list %s%s: %w", tier, prefix, err)
	}

	var notifications []types.Notification
	for _, obj := range objects {
		if utils.HasTabularExtension(obj.Key) {
			notifications = append(notifications, types.Notification{Bucket: bucket, Key: obj.Key})
		}
	}

	log.Printf("Reprocessing %d objects under s3://%s/%s%s", len(notifications), bucket, tier, prefix)

	handler := trigger.NewHandler(p.Classifier, p.Aggregator, config.StageAuto)
	return handler.HandleNotifications(ctx, notifications), nil
}

// Status reports the four tiers of the configured bucket.
func (p *Pipeline) Status(ctx context.Context) (api.StatusReport, error) {
	if p.Config.Storage.Bucket == "" {
		return api.StatusReport{}, ErrBucketRequired
	}
	return api.TierStatus(ctx, p.Store, p.Config.Storage.Bucket)
}
