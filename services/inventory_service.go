package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"ticket-marketplace/internal/status"

	"github.com/redis/go-redis/v9"
)

// InventoryService is the Redis-backed inventory gate for ticket types.
// Hold runs under WATCH so the read-check-decrement of a counter is a
// single atomic unit; two concurrent creates racing for the last tickets
// conflict on the key and one of them retries against the new value.
type InventoryService struct {
	Redis *redis.Client
}

func NewInventoryService(redisClient *redis.Client) *InventoryService {
	return &InventoryService{Redis: redisClient}
}

func inventoryKey(ticketTypeID string) string {
	return fmt.Sprintf("inventory:%s", ticketTypeID)
}

const holdRetries = 5

func (s *InventoryService) Hold(ctx context.Context, ticketTypeID string, quantity int) error {
	key := inventoryKey(ticketTypeID)

	for i := 0; i < holdRetries; i++ {
		err := s.Redis.Watch(ctx, func(tx *redis.Tx) error {
			val, err := tx.Get(ctx, key).Result()
			if err == redis.Nil {
				return fmt.Errorf("inventory: unknown ticket type %s", ticketTypeID)
			}
			if err != nil {
				return err
			}

			remaining, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("inventory: corrupt counter for %s: %w", ticketTypeID, err)
			}
			if quantity > remaining {
				return status.ErrCapacityExceeded
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.DecrBy(ctx, key, int64(quantity))
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			// Another hold moved the counter; retry against the new value.
			continue
		}
		return err
	}

	return fmt.Errorf("inventory: hold contention on %s", ticketTypeID)
}

func (s *InventoryService) Release(ctx context.Context, ticketTypeID string, quantity int) error {
	if err := s.Redis.IncrBy(ctx, inventoryKey(ticketTypeID), int64(quantity)).Err(); err != nil {
		slog.Error("failed to release inventory hold",
			"ticket_type", ticketTypeID, "quantity", quantity, "error", err)
		return err
	}
	return nil
}

func (s *InventoryService) Remaining(ctx context.Context, ticketTypeID string) (int, error) {
	val, err := s.Redis.Get(ctx, inventoryKey(ticketTypeID)).Result()
	if err == redis.Nil {
		return 0, fmt.Errorf("inventory: unknown ticket type %s", ticketTypeID)
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

// Seed sets the remaining counter for a ticket type, used when syncing
// published ticket types into Redis at startup.
func (s *InventoryService) Seed(ctx context.Context, ticketTypeID string, remaining int) error {
	return s.Redis.Set(ctx, inventoryKey(ticketTypeID), remaining, 0).Err()
}
