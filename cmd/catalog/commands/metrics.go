package commands

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
)

// LogStorageMetrics writes the storage operation counters of this run at
// debug level (-vv). Nothing is counted unless catalog.metrics_enabled is set.
func LogStorageMetrics(ctx context.Context) {
	logStorageMetrics(ctx, logger.Logger, prometheus.DefaultGatherer)
}

func logStorageMetrics(ctx context.Context, base *zap.SugaredLogger, g prometheus.Gatherer) {
	log := logger.FromContext(ctx, base)
	if !log.Desugar().Core().Enabled(zap.DebugLevel) {
		return
	}

	ops, err := storage.SummarizeOperations(g)
	if err != nil {
		log.Debugw("Could not read storage metrics", logger.FieldError, err)
		return
	}
	for _, op := range ops {
		log.Debugw("Storage operations",
			logger.FieldBackend, op.Backend,
			logger.FieldOperation, op.Operation,
			logger.FieldStatus, op.Outcome,
			logger.FieldCount, op.Count,
		)
	}
}
