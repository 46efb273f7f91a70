package dgvi

import (
	"context"
	"fmt"
	"log"

	"github.com/greenroute/greenroute_core/internal/models"
)

// rebuildChunkSize bounds how many road edges one upsert batch carries.
const rebuildChunkSize = 100

// RebuildMonth recomputes the DGVI of every road edge for one month,
// upserting in chunks and renormalizing the month once all chunks are
// written. The operation is idempotent: rerunning it for the same month
// yields the same rows. Cancellation is observed between chunks.
func (e *Evaluator) RebuildMonth(ctx context.Context, month string) (int, error) {
	edges, err := e.store.RoadEdgeRefs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate road edges: %w", err)
	}

	log.Printf("Rebuilding DGVI for %s over %d road edges", month, len(edges))

	processed := 0
	for start := 0; start < len(edges); start += rebuildChunkSize {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		end := start + rebuildChunkSize
		if end > len(edges) {
			end = len(edges)
		}

		rows := make([]models.RoadDGVI, 0, end-start)
		for _, edge := range edges[start:end] {
			value, err := e.ComputeEdge(ctx, edge, month)
			if err != nil {
				return processed, fmt.Errorf("DGVI for edge %d failed: %w", edge.ID, err)
			}
			rows = append(rows, models.RoadDGVI{
				RoadID: edge.ID,
				Month:  month,
				DGVI:   value,
			})
		}

		if err := e.store.UpsertDGVI(ctx, rows); err != nil {
			return processed, err
		}

		processed += len(rows)
		if processed%1000 == 0 {
			log.Printf("  %d/%d edges done", processed, len(edges))
		}
	}

	if err := e.store.NormalizeMonth(ctx, month); err != nil {
		return processed, err
	}

	log.Printf("DGVI rebuild for %s complete (%d edges)", month, processed)
	return processed, nil
}
