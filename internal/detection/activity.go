package detection

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ActivityTracker keeps sliding-window submission counters and the
// exact-duplicate signature set in Redis. Counters back the rate_limit
// and burst_activity rules without a table scan per submission; the
// signature set lets identical resubmissions skip the similarity scan.
//
// Every method returns its Redis error to the caller; the service treats
// those as soft failures and falls back to SQL counts.
type ActivityTracker struct {
	client        redis.Cmdable
	userWindow    time.Duration
	productWindow time.Duration
}

// NewActivityTracker creates a tracker with the configured rate windows
func NewActivityTracker(client redis.Cmdable, userWindow, productWindow time.Duration) *ActivityTracker {
	return &ActivityTracker{
		client:        client,
		userWindow:    userWindow,
		productWindow: productWindow,
	}
}

func userActivityKey(userID uuid.UUID) string {
	return "activity:user:" + userID.String()
}

func productActivityKey(productID uuid.UUID) string {
	return "activity:product:" + productID.String()
}

func signatureKey(productID uuid.UUID) string {
	return "signatures:product:" + productID.String()
}

// RecordSubmission adds a submission to both sliding windows
func (t *ActivityTracker) RecordSubmission(ctx context.Context, userID, productID, reviewID uuid.UUID, at time.Time) error {
	member := redis.Z{Score: float64(at.UnixNano()), Member: reviewID.String()}

	if err := t.client.ZAdd(ctx, userActivityKey(userID), member).Err(); err != nil {
		return fmt.Errorf("record user activity: %w", err)
	}
	if err := t.client.Expire(ctx, userActivityKey(userID), 2*t.userWindow).Err(); err != nil {
		return fmt.Errorf("expire user activity: %w", err)
	}

	if err := t.client.ZAdd(ctx, productActivityKey(productID), member).Err(); err != nil {
		return fmt.Errorf("record product activity: %w", err)
	}
	if err := t.client.Expire(ctx, productActivityKey(productID), 2*t.productWindow).Err(); err != nil {
		return fmt.Errorf("expire product activity: %w", err)
	}

	return nil
}

// RecentUserCount prunes entries older than the user window and returns
// the remaining count
func (t *ActivityTracker) RecentUserCount(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	return t.windowCount(ctx, userActivityKey(userID), now.Add(-t.userWindow))
}

// RecentProductCount prunes entries older than the product window and
// returns the remaining count
func (t *ActivityTracker) RecentProductCount(ctx context.Context, productID uuid.UUID, now time.Time) (int, error) {
	return t.windowCount(ctx, productActivityKey(productID), now.Add(-t.productWindow))
}

func (t *ActivityTracker) windowCount(ctx context.Context, key string, cutoff time.Time) (int, error) {
	max := strconv.FormatInt(cutoff.UnixNano(), 10)
	if err := t.client.ZRemRangeByScore(ctx, key, "-inf", "("+max).Err(); err != nil {
		return 0, fmt.Errorf("prune activity window: %w", err)
	}

	count, err := t.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("count activity window: %w", err)
	}

	return int(count), nil
}

// IsKnownText reports whether the signature has been seen for this
// product before
func (t *ActivityTracker) IsKnownText(ctx context.Context, productID uuid.UUID, signature string) (bool, error) {
	known, err := t.client.SIsMember(ctx, signatureKey(productID), signature).Result()
	if err != nil {
		return false, fmt.Errorf("check text signature: %w", err)
	}
	return known, nil
}

// RememberText adds the signature to the product's set
func (t *ActivityTracker) RememberText(ctx context.Context, productID uuid.UUID, signature string) error {
	if err := t.client.SAdd(ctx, signatureKey(productID), signature).Err(); err != nil {
		return fmt.Errorf("store text signature: %w", err)
	}
	return nil
}
