package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"leadflow/internal/model"
)

// FunnelCache counts sessions per form as they start, step and complete
type FunnelCache interface {
	Incr(ctx context.Context, formID string, event model.FunnelEvent) error
	Get(ctx context.Context, formID string) (*model.FormFunnel, error)
}

type funnelCache struct {
	client *redis.Client
}

// NewFunnelCache creates a new funnel cache
func NewFunnelCache(client *redis.Client) FunnelCache {
	return &funnelCache{
		client: client,
	}
}

func (c *funnelCache) key(formID string) string {
	return fmt.Sprintf("form:%s:funnel", formID)
}

func (c *funnelCache) Incr(ctx context.Context, formID string, event model.FunnelEvent) error {
	return c.client.HIncrBy(ctx, c.key(formID), string(event), 1).Err()
}

func (c *funnelCache) Get(ctx context.Context, formID string) (*model.FormFunnel, error) {
	fields, err := c.client.HGetAll(ctx, c.key(formID)).Result()
	if err != nil {
		return nil, err
	}

	count := func(event model.FunnelEvent) int64 {
		n, _ := strconv.ParseInt(fields[string(event)], 10, 64)
		return n
	}
	return &model.FormFunnel{
		FormID:      formID,
		Started:     count(model.FunnelStarted),
		Steps:       count(model.FunnelSteps),
		Qualified:   count(model.FunnelQualified),
		Unqualified: count(model.FunnelUnqualified),
		Abandoned:   count(model.FunnelAbandoned),
	}, nil
}
