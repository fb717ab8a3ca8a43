package detection

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DetectionRepository defines the persistence operations the detection
// service and batch orchestrator require. The concrete implementation
// runs on pgx; tests substitute mocks.
type DetectionRepository interface {
	// Submission path
	CreateReview(ctx context.Context, review *Review) error
	GetReviewByID(ctx context.Context, reviewID uuid.UUID) (*Review, error)
	ListReviewsByProduct(ctx context.Context, productID uuid.UUID, limit, offset int) ([]*Review, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*User, error)
	NormalizedTextsByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]string, error)
	CountRecentByUser(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	CountRecentByProduct(ctx context.Context, productID uuid.UUID, since time.Time) (int, error)
	IsDeviceShared(ctx context.Context, fingerprint string, userID uuid.UUID) (bool, error)

	// Batch path
	SnapshotReviews(ctx context.Context) ([]*Review, error)
	SnapshotUnlabeledReviews(ctx context.Context) ([]*Review, error)
	CommitBatchVerdicts(ctx context.Context, reviews []*Review) error
}
