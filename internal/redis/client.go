package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "inzo:"

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// NotificationChannel is the pub/sub channel carrying outbound chat messages
// for a stream topic.
func NotificationChannel(topic string) string {
	return fmt.Sprintf("%snotifications:%s", keyPrefix, topic)
}

func KYCKey(userID string) string {
	return fmt.Sprintf("%skyc:%s", keyPrefix, userID)
}

func ApplicationKey(userID string) string {
	return fmt.Sprintf("%sapp:%s", keyPrefix, userID)
}

func ClaimKey(userID string, policyID uint64) string {
	return fmt.Sprintf("%sclaim:%s:%d", keyPrefix, userID, policyID)
}

func ExpectedInputKey(userID string) string {
	return fmt.Sprintf("%sexpect:%s", keyPrefix, userID)
}

// Patterns for SCAN-based sweeps.
const (
	ApplicationPattern   = keyPrefix + "app:*"
	ClaimPattern         = keyPrefix + "claim:*"
	ExpectedInputPattern = keyPrefix + "expect:*"
)

func RateLimitKey(userID string) string {
	return fmt.Sprintf("%sratelimit:%s", keyPrefix, userID)
}
