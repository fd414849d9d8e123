package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/othellohq/othello-backend/internal/entity"
)

// HistoryRepository archives every game state a room went through. The
// archive is append-only and never replayed by the relay; it exists for
// inspection after the fact.
type HistoryRepository interface {
	Append(ctx context.Context, room string, state *entity.GameState) error
	ListByRoom(ctx context.Context, room string) ([]*entity.GameState, error)
}

type dbHistory struct {
	client *redis.Client
}

func NewHistoryRepository(client *redis.Client) HistoryRepository {
	return &dbHistory{
		client: client,
	}
}

func (that *dbHistory) Append(ctx context.Context, room string, state *entity.GameState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("could not marshal game state: %w", err)
	}

	historyKey := "history:" + room
	err = that.client.RPush(ctx, historyKey, stateJSON).Err()
	if err != nil {
		return fmt.Errorf("failed to append game state: %w", err)
	}

	return nil
}

func (that *dbHistory) ListByRoom(ctx context.Context, room string) ([]*entity.GameState, error) {
	historyKey := "history:" + room

	entries, err := that.client.LRange(ctx, historyKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list game states: %w", err)
	}

	states := make([]*entity.GameState, 0, len(entries))

	for _, entry := range entries {
		var state entity.GameState
		if err = json.Unmarshal([]byte(entry), &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal game state: %w", err)
		}

		states = append(states, &state)
	}

	return states, nil
}
