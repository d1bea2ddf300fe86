package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"leadflow/internal/model"
)

// LeadBoard ranks a client's qualified leads by final score (Redis ZSET)
type LeadBoard interface {
	Record(ctx context.Context, clientID, sessionID string, score int) error
	Top(ctx context.Context, clientID string, limit int) ([]model.LeadEntry, error)
	Rank(ctx context.Context, clientID, sessionID string) (int64, error)
}

type leadBoard struct {
	client *redis.Client
}

// NewLeadBoard creates a new lead board
func NewLeadBoard(client *redis.Client) LeadBoard {
	return &leadBoard{
		client: client,
	}
}

func (c *leadBoard) key(clientID string) string {
	return fmt.Sprintf("client:%s:leads", clientID)
}

func (c *leadBoard) Record(ctx context.Context, clientID, sessionID string, score int) error {
	return c.client.ZAdd(ctx, c.key(clientID), redis.Z{
		Score:  float64(score),
		Member: sessionID,
	}).Err()
}

func (c *leadBoard) Top(ctx context.Context, clientID string, limit int) ([]model.LeadEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	results, err := c.client.ZRevRangeWithScores(ctx, c.key(clientID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]model.LeadEntry, len(results))
	for i, z := range results {
		member, _ := z.Member.(string)
		entries[i] = model.LeadEntry{
			SessionID: member,
			Score:     int(z.Score),
			Rank:      i + 1,
		}
	}
	return entries, nil
}

// Rank is 1-indexed, -1 when the session is not on the board
func (c *leadBoard) Rank(ctx context.Context, clientID, sessionID string) (int64, error) {
	rank, err := c.client.ZRevRank(ctx, c.key(clientID), sessionID).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	return rank + 1, nil
}
