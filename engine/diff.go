package engine

import (
	"context"

	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/transport"
)

// diffQuery asks the server which checksums it already holds. Every failure
// degrades conservatively to "nothing is known": the batch then re-uploads
// instead of silently dropping data. Dedup is an optimization, never a
// correctness dependency.
type diffQuery struct {
	client   *transport.Client
	disabled bool

	logger    *log.Logger
	collector *metrics.Collector
}

// known returns the subset of checksums the server already holds. With dedup
// disabled, or on any diff failure, the result is empty.
func (d *diffQuery) known(ctx context.Context, checksums []string) map[string]bool {
	if d.disabled || len(checksums) == 0 {
		return nil
	}

	d.collector.IncDiffRequest()
	missing, err := d.client.MissingChecksums(ctx, checksums)
	if err != nil {
		d.logger.Warn("diff query failed, treating all checksums as missing", map[string]any{
			"checksums": len(checksums),
			"error":     err.Error(),
		})
		return nil
	}

	missingSet := make(map[string]bool, len(missing))
	for _, sum := range missing {
		missingSet[sum] = true
	}

	known := make(map[string]bool, len(checksums))
	for _, sum := range checksums {
		if !missingSet[sum] {
			known[sum] = true
		}
	}
	return known
}
