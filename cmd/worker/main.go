package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sdclabs/chatgate/internal/config"
	"github.com/sdclabs/chatgate/internal/store"
	"github.com/sdclabs/chatgate/internal/store/rabbitmq"
	"github.com/sdclabs/chatgate/internal/store/redisstore"
)

// The relay tails every per-tenant feedback stream and forwards each vote
// event to the analytics queue. Cursors are kept in memory: a restart replays
// the streams from the beginning, which is fine because the queue consumer is
// expected to dedupe on (tenant, message_id, user_id).

const (
	streamPattern = "feedback_stream:*"
	scanInterval  = 10 * time.Second
	readBlock     = 2 * time.Second
	readBatch     = 100
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

type relayItem struct {
	stream string
	entry  store.StreamEntry
}

func main() {
	cfg := config.Load()

	rds, err := redisstore.New(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("redis connect: %v", err)
	}
	defer rds.Close()

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit connect: %v", err)
	}
	defer pub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	concurrency := workerConcurrency()
	log.Printf("relay started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	// worker pool
	items := make(chan relayItem, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for it := range items {
				ev := eventFromEntry(it.stream, it.entry)
				start := time.Now()
				if err := pub.PublishEvent(ctx, ev); err != nil {
					log.Printf("worker=%d publish failed stream=%s id=%s cost=%s err=%v",
						workerID, it.stream, it.entry.ID, time.Since(start), err)
					continue
				}
			}
		}(i)
	}

	// dispatcher: rediscover streams periodically, tail each round-robin
	cursors := make(map[string]string)
	streams := []string{}
	lastScan := time.Time{}

	for {
		select {
		case <-ctx.Done():
			log.Printf("relay shutting down")
			close(items)
			wg.Wait()
			return
		default:
		}

		if time.Since(lastScan) > scanInterval || len(streams) == 0 {
			keys, err := rds.Keys(ctx, streamPattern)
			if err != nil {
				log.Printf("stream scan failed: %v", err)
				time.Sleep(time.Second)
				continue
			}
			streams = keys
			lastScan = time.Now()
			if len(streams) == 0 {
				time.Sleep(scanInterval)
				continue
			}
		}

		for _, s := range streams {
			last, ok := cursors[s]
			if !ok {
				last = "0"
			}
			entries, err := rds.XRead(ctx, s, last, readBatch, readBlock)
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				log.Printf("read failed stream=%s: %v", s, err)
				continue
			}
			for _, e := range entries {
				items <- relayItem{stream: s, entry: e}
				cursors[s] = e.ID
			}
		}
	}
}

func eventFromEntry(stream string, e store.StreamEntry) rabbitmq.FeedbackEvent {
	ev := rabbitmq.FeedbackEvent{
		Tenant:    e.Values["tenant"],
		MessageID: e.Values["message_id"],
		UserID:    e.Values["user_id"],
		Vote:      e.Values["vote"],
		Timestamp: e.Values["timestamp"],
	}
	if ev.Tenant == "" {
		ev.Tenant = strings.TrimPrefix(stream, "feedback_stream:")
	}
	return ev
}
