package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/domainscope/sitemapper/internal/progress"
	"github.com/domainscope/sitemapper/internal/store"
)

// StoreSink applies progress deltas to a store.CrawlStore so the ops API can
// show live counters while a crawl runs. It collapses per-crawl deltas within
// a batch to reduce write amplification. Terminal transitions are owned by
// the crawl runner, so CRAWL_DONE events are ignored here.
type StoreSink struct {
	crawls store.CrawlStore
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided store.
func NewStoreSink(crawls store.CrawlStore, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{crawls: crawls, logger: logger}
}

// Consume collapses crawl deltas and forwards them to the store. It respects
// ctx deadlines and returns any store errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.crawls == nil {
		return nil
	}
	deltas := make(map[uuid.UUID]*crawlDelta)

	for _, evt := range batch {
		crawlID := evt.CrawlUUID()
		switch evt.Stage {
		case progress.StageCrawlStart:
			if err := s.crawls.MarkRunning(ctx, crawlID, evt.TS); err != nil {
				s.logger.Debug("mark crawl running skipped", zap.String("crawl_id", crawlID.String()), zap.Error(err))
			}
		case progress.StageFetchDone:
			delta(deltas, crawlID, evt).counters.Bytes += evt.Bytes
		case progress.StagePageDone:
			d := delta(deltas, crawlID, evt)
			d.counters.Pages++
			d.counters.Links += evt.Links
			d.counters.LastURL = evt.URL
		}
	}

	for crawlID, d := range deltas {
		if d.counters == (store.Counters{}) {
			continue
		}
		if err := s.crawls.ApplyProgress(ctx, crawlID, d.counters, d.at); err != nil {
			return fmt.Errorf("apply crawl progress: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type crawlDelta struct {
	counters store.Counters
	at       time.Time
}

func delta(deltas map[uuid.UUID]*crawlDelta, crawlID uuid.UUID, evt progress.Event) *crawlDelta {
	d := deltas[crawlID]
	if d == nil {
		d = &crawlDelta{}
		deltas[crawlID] = d
	}
	if evt.TS.After(d.at) {
		d.at = evt.TS
	}
	return d
}
