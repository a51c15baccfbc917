package workers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/everbloom-ai/everbloom/internal/dispatch"
	"github.com/everbloom-ai/everbloom/internal/services"
)

// PipelineWorkerPool consumes background pipeline tasks from a Redis stream
// through a consumer group. Delivery is at-least-once; every job guards its
// own threshold so a duplicate delivery is a cheap no-op. A failing job is
// acked and logged: the pipeline is best-effort by contract and a poison task
// must not wedge the stream.
type PipelineWorkerPool struct {
	Redis      *redis.Client
	NumWorkers int

	Overseer services.OverseerService
	Chunks   services.ChunkSummarizer
	Supers   services.SuperSummarizer
	Profiles services.ProfileSynthesizer
	Stages   services.StageService

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *PipelineWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Overseer == nil || p.Chunks == nil || p.Supers == nil || p.Profiles == nil || p.Stages == nil {
		return errors.New("PipelineWorkerPool missing dependency")
	}
	if p.Stream == "" {
		p.Stream = dispatch.DefaultStream
	}
	if p.Group == "" {
		p.Group = "pipeline-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "w"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 5
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *PipelineWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func (p *PipelineWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	kind := getStr("kind")
	userID := getStr("user_id")
	if kind == "" || userID == "" {
		return
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id": msg.ID,
		"kind":     kind,
		"user_id":  userID,
	})

	start := time.Now()
	var err error
	switch kind {
	case dispatch.KindSafetyCheck:
		err = p.Overseer.Evaluate(ctx, userID)
	case dispatch.KindChunkSummary:
		err = p.Chunks.Run(ctx, userID)
	case dispatch.KindSuperSummary:
		err = p.Supers.Run(ctx, userID)
	case dispatch.KindProfileSynthesis:
		err = p.Profiles.Run(ctx, userID)
	case dispatch.KindStageProgress:
		err = p.Stages.Run(ctx, userID)
	default:
		log.Warn("unknown task kind")
		return
	}

	log = log.WithField("duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		log.WithError(err).Error("pipeline task failed")
		return
	}
	log.Debug("pipeline task done")
}
