package detection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrReviewNotFound is returned when a review id has no row
var ErrReviewNotFound = errors.New("review not found")

// ErrUserNotFound is returned when a user id has no row
var ErrUserNotFound = errors.New("user not found")

// Repository handles review and user persistence for the detection engine
type Repository struct {
	db *pgxpool.Pool
}

// Ensure the concrete repository satisfies the service's requirements.
var _ DetectionRepository = (*Repository)(nil)

// NewRepository creates a new detection repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const reviewColumns = `
	id, product_id, user_id, rating, review_text, normalized_text,
	ip_address, device_fingerprint, created_at,
	duplicate_score, rule_flags, weighted_rule_score, flag_reasons, is_fake_rule_based,
	is_fake_ml, ml_confidence, behavior_flags, suspicious_score,
	is_fake_final, label_source
`

// CreateReview inserts a review with its submission-time verdict
func (r *Repository) CreateReview(ctx context.Context, review *Review) error {
	ruleFlagsJSON, err := json.Marshal(review.RuleFlags)
	if err != nil {
		return fmt.Errorf("marshal rule flags: %w", err)
	}

	query := `
		INSERT INTO reviews (
			id, product_id, user_id, rating, review_text, normalized_text,
			ip_address, device_fingerprint, created_at,
			duplicate_score, rule_flags, weighted_rule_score, flag_reasons,
			is_fake_rule_based, ml_confidence, behavior_flags, suspicious_score, label_source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = r.db.Exec(ctx, query,
		review.ID,
		review.ProductID,
		review.UserID,
		review.Rating,
		review.Text,
		review.NormalizedText,
		review.IPAddress,
		review.DeviceFingerprint,
		review.CreatedAt,
		review.DuplicateScore,
		ruleFlagsJSON,
		review.WeightedRuleScore,
		review.FlagReasons,
		review.IsFakeRuleBased,
		review.MLConfidence,
		review.BehaviorFlags,
		review.SuspiciousScore,
		review.LabelSource,
	)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}

	return nil
}

// GetReviewByID retrieves a review with all verdict fields
func (r *Repository) GetReviewByID(ctx context.Context, reviewID uuid.UUID) (*Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	review, err := scanReview(r.db.QueryRow(ctx, query, reviewID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("get review: %w", err)
	}

	return review, nil
}

// ListReviewsByProduct retrieves reviews for a product, newest first
func (r *Repository) ListReviewsByProduct(ctx context.Context, productID uuid.UUID, limit, offset int) ([]*Review, error) {
	query := `SELECT ` + reviewColumns + `
		FROM reviews
		WHERE product_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, productID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	return collectReviews(rows)
}

// GetUserByID retrieves the user fields the engine needs
func (r *Repository) GetUserByID(ctx context.Context, userID uuid.UUID) (*User, error) {
	query := `SELECT id, created_at FROM users WHERE id = $1`

	var user User
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.SignupAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &user, nil
}

// NormalizedTextsByProduct returns prior normalized texts for duplicate
// scoring, newest first, bounded by limit
func (r *Repository) NormalizedTextsByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]string, error) {
	query := `
		SELECT normalized_text
		FROM reviews
		WHERE product_id = $1 AND normalized_text <> ''
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("load duplicate corpus: %w", err)
	}
	defer rows.Close()

	texts := make([]string, 0)
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan normalized text: %w", err)
		}
		texts = append(texts, text)
	}

	return texts, rows.Err()
}

// CountRecentByUser counts a user's reviews since the given time
func (r *Repository) CountRecentByUser(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM reviews WHERE user_id = $1 AND created_at >= $2`
	if err := r.db.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count recent user reviews: %w", err)
	}
	return count, nil
}

// CountRecentByProduct counts a product's reviews since the given time
func (r *Repository) CountRecentByProduct(ctx context.Context, productID uuid.UUID, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM reviews WHERE product_id = $1 AND created_at >= $2`
	if err := r.db.QueryRow(ctx, query, productID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count recent product reviews: %w", err)
	}
	return count, nil
}

// IsDeviceShared reports whether the fingerprint already appears on a
// review from a different user. Empty fingerprints never match.
func (r *Repository) IsDeviceShared(ctx context.Context, fingerprint string, userID uuid.UUID) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}

	var shared bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM reviews
			WHERE device_fingerprint = $1 AND user_id <> $2
		)
	`
	if err := r.db.QueryRow(ctx, query, fingerprint, userID).Scan(&shared); err != nil {
		return false, fmt.Errorf("check device sharing: %w", err)
	}

	return shared, nil
}

// SnapshotReviews materializes the full corpus for a batch run
func (r *Repository) SnapshotReviews(ctx context.Context) ([]*Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("snapshot reviews: %w", err)
	}
	defer rows.Close()

	return collectReviews(rows)
}

// SnapshotUnlabeledReviews materializes only reviews without a final
// verdict, for incremental runs
func (r *Repository) SnapshotUnlabeledReviews(ctx context.Context) ([]*Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE is_fake_final IS NULL ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("snapshot unlabeled reviews: %w", err)
	}
	defer rows.Close()

	return collectReviews(rows)
}

// CommitBatchVerdicts writes every batch-derived verdict field in one
// transaction. Either the whole set of updates lands or none does.
func (r *Repository) CommitBatchVerdicts(ctx context.Context, reviews []*Review) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin verdict commit: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE reviews
		SET is_fake_ml = $2,
		    ml_confidence = $3,
		    behavior_flags = $4,
		    suspicious_score = $5,
		    is_fake_final = $6,
		    label_source = $7
		WHERE id = $1
	`

	batch := &pgx.Batch{}
	for _, review := range reviews {
		batch.Queue(query,
			review.ID,
			review.IsFakeML,
			review.MLConfidence,
			review.BehaviorFlags,
			review.SuspiciousScore,
			review.IsFakeFinal,
			review.LabelSource,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range reviews {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("update verdict: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close verdict batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit verdicts: %w", err)
	}

	return nil
}

// rowScanner covers pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReview(row rowScanner) (*Review, error) {
	var review Review
	var ruleFlagsJSON []byte
	var isFakeML, isFakeFinal sql.NullBool
	var labelSource string

	err := row.Scan(
		&review.ID,
		&review.ProductID,
		&review.UserID,
		&review.Rating,
		&review.Text,
		&review.NormalizedText,
		&review.IPAddress,
		&review.DeviceFingerprint,
		&review.CreatedAt,
		&review.DuplicateScore,
		&ruleFlagsJSON,
		&review.WeightedRuleScore,
		&review.FlagReasons,
		&review.IsFakeRuleBased,
		&isFakeML,
		&review.MLConfidence,
		&review.BehaviorFlags,
		&review.SuspiciousScore,
		&isFakeFinal,
		&labelSource,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(ruleFlagsJSON, &review.RuleFlags); err != nil {
		review.RuleFlags = make(map[string]bool)
	}
	if isFakeML.Valid {
		review.IsFakeML = &isFakeML.Bool
	}
	if isFakeFinal.Valid {
		review.IsFakeFinal = &isFakeFinal.Bool
	}
	review.LabelSource = LabelSource(labelSource)

	return &review, nil
}

func collectReviews(rows pgx.Rows) ([]*Review, error) {
	reviews := make([]*Review, 0)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}
