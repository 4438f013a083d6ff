package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Nekit-S/drowsiness-detection/internal/config"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// AllDriversPattern matches every DriverChannel.
const AllDriversPattern = "driver-events:*"

// DriverChannel is the pubsub channel carrying live events for one driver.
func DriverChannel(driverID string) string {
	return fmt.Sprintf("driver-events:%s", driverID)
}

func lockKey(name string) string {
	return fmt.Sprintf("lock:%s", name)
}
