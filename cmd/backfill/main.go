// Backfill computes missing embeddings for existing documents. Run it once
// after changing the embedding model or dimensions, or after a bulk import.
package main

import (
	"context"
	"flag"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/campusfound/matchd/internal/config"
	dbRedis "github.com/campusfound/matchd/internal/db/redis"
	"github.com/campusfound/matchd/internal/domain"
	logpkg "github.com/campusfound/matchd/internal/logger"
	"github.com/campusfound/matchd/internal/metrics"
	"github.com/campusfound/matchd/internal/repository/embcache"
	itemrepo "github.com/campusfound/matchd/internal/repository/item"
	openaiEmb "github.com/campusfound/matchd/internal/transport/openai"
	embeddinguc "github.com/campusfound/matchd/internal/usecase/embedding"
)

const batchSize = 5

type counters struct {
	mu        sync.Mutex
	processed int
	skipped   int
	failed    int
}

func main() {
	dryRun := flag.Bool("dry-run", false, "report what would be embedded without calling the provider")
	flag.Parse()

	_ = godotenv.Load()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Store not ready", zap.Error(err))
	}

	metrics.RegisterEmbeddingMetrics()

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	embedder := embcache.New(base, store, cfg.Storage.KeyPrefix, metrics.EmbeddingCacheTotal, logger)

	items := itemrepo.New(store, cfg.Storage.KeyPrefix, cfg.Embedding.Dimensions)
	ensurer := embeddinguc.New(items, embedder, cfg.Embedding.Dimensions, logger)

	totals := &counters{}
	start := time.Now()

	for _, col := range []domain.Collection{domain.CollectionRequests, domain.CollectionFound} {
		if err := backfillCollection(ctx, col, items, ensurer, cfg.Embedding.Dimensions, *dryRun, totals, logger); err != nil {
			logger.Fatal("Backfill failed",
				zap.String("collection", string(col)),
				zap.Error(err))
		}
	}

	logger.Info("Backfill completed",
		zap.Bool("dry_run", *dryRun),
		zap.Int("processed", totals.processed),
		zap.Int("skipped", totals.skipped),
		zap.Int("failed", totals.failed),
		zap.Duration("duration", time.Since(start)))
}

func backfillCollection(
	ctx context.Context,
	col domain.Collection,
	items *itemrepo.Repo,
	ensurer *embeddinguc.Service,
	dimensions int,
	dryRun bool,
	totals *counters,
	logger *zap.Logger,
) error {
	var ids []string
	var err error
	if col == domain.CollectionRequests {
		ids, err = items.RequestIDs(ctx, 0)
	} else {
		ids, err = items.FoundIDs(ctx, 0)
	}
	if err != nil {
		return err
	}

	logger.Info("Scanning collection",
		zap.String("collection", string(col)),
		zap.Int("documents", len(ids)))

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}

		// One round-trip per batch; documents deleted since the scan
		// silently fall out of the result.
		batch, err := items.GetMulti(ctx, col, ids[start:end])
		if err != nil {
			return err
		}

		var wg sync.WaitGroup
		for i := range batch {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				backfillOne(ctx, col, &batch[i], ensurer, dimensions, dryRun, totals, logger)
			}()
		}
		wg.Wait()
	}

	return nil
}

func backfillOne(
	ctx context.Context,
	col domain.Collection,
	item *domain.Item,
	ensurer *embeddinguc.Service,
	dimensions int,
	dryRun bool,
	totals *counters,
	logger *zap.Logger,
) {
	if item.HasValidEmbedding(dimensions) {
		totals.mu.Lock()
		totals.skipped++
		totals.mu.Unlock()
		return
	}

	if dryRun {
		totals.mu.Lock()
		totals.processed++
		totals.mu.Unlock()
		logger.Info("Would embed",
			zap.String("collection", string(col)),
			zap.String("id", item.ID))
		return
	}

	if _, err := ensurer.EnsureItem(ctx, col, item); err != nil {
		totals.mu.Lock()
		totals.failed++
		totals.mu.Unlock()
		logger.Warn("Failed to embed document",
			zap.String("collection", string(col)),
			zap.String("id", item.ID),
			zap.Error(err))
		return
	}

	totals.mu.Lock()
	totals.processed++
	totals.mu.Unlock()
}
