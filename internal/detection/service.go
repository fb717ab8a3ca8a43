package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/reviewguard/reviewguard/pkg/common"
	"github.com/reviewguard/reviewguard/pkg/config"
	"github.com/reviewguard/reviewguard/pkg/logger"
	"go.uber.org/zap"
)

// Service runs the synchronous submission-time scoring path:
// normalization, duplicate similarity, and rule evaluation.
type Service struct {
	repo     DetectionRepository
	rules    *Engine
	activity *ActivityTracker // nil disables the Redis fast paths
	cfg      config.DetectionConfig
	now      func() time.Time
}

// NewService creates a new detection service
func NewService(repo DetectionRepository, rules *Engine, activity *ActivityTracker, cfg config.DetectionConfig) *Service {
	return &Service{
		repo:     repo,
		rules:    rules,
		activity: activity,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ScoreSubmission scores one well-formed submission, persists the review
// with its rule-based verdict, and returns the verdict for the API layer
// to attach to its response.
func (s *Service) ScoreSubmission(ctx context.Context, req *SubmitReviewRequest) (*SubmissionVerdict, error) {
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return nil, common.NewBadRequestError("invalid product_id", err)
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, common.NewBadRequestError("invalid user_id", err)
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, common.NewNotFoundError("user not found")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	now := s.now()
	normalized := Normalize(req.Text)
	signature := Signature(normalized)

	duplicateScore, err := s.duplicateScore(ctx, productID, normalized, signature)
	if err != nil {
		return nil, err
	}

	facts := Facts{
		AccountAgeDays: int(now.Sub(user.SignupAt).Hours() / 24),
		Rating:         req.Rating,
		DuplicateScore: duplicateScore,
		WordCount:      WordCount(normalized),
		IPAddress:      req.IPAddress,
	}

	facts.RecentUserReviews, facts.RecentProductReviews = s.recentCounts(ctx, userID, productID, now)

	facts.DeviceShared, err = s.repo.IsDeviceShared(ctx, req.DeviceFingerprint, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve device sharing: %w", err)
	}

	verdict := s.rules.Evaluate(facts)

	review := &Review{
		ID:                uuid.New(),
		ProductID:         productID,
		UserID:            userID,
		Rating:            req.Rating,
		Text:              req.Text,
		NormalizedText:    normalized,
		IPAddress:         req.IPAddress,
		DeviceFingerprint: req.DeviceFingerprint,
		CreatedAt:         now,
		DuplicateScore:    duplicateScore,
		RuleFlags:         verdict.Flags,
		WeightedRuleScore: verdict.WeightedScore,
		FlagReasons:       verdict.Reasons,
		IsFakeRuleBased:   verdict.IsFake(),
		BehaviorFlags:     make([]string, 0),
		LabelSource:       LabelSourceRuleEngine,
	}

	if err := s.repo.CreateReview(ctx, review); err != nil {
		return nil, fmt.Errorf("persist review: %w", err)
	}

	s.recordActivity(ctx, review, signature)

	reviewsScoredTotal.Inc()
	for name, triggered := range verdict.Flags {
		if triggered {
			rulesTriggeredTotal.WithLabelValues(name).Inc()
		}
	}
	if review.IsFakeRuleBased {
		fakeVerdictsTotal.WithLabelValues(ProvenanceRuleEngine).Inc()
		logger.WithContext(ctx).Info("review flagged at submission",
			zap.String("review_id", review.ID.String()),
			zap.String("user_id", userID.String()),
			zap.Float64("weighted_rule_score", verdict.WeightedScore),
			zap.Strings("reasons", verdict.Reasons),
		)
	}

	return &SubmissionVerdict{
		ReviewID:          review.ID,
		DuplicateScore:    duplicateScore,
		RuleFlags:         verdict.Flags,
		WeightedRuleScore: verdict.WeightedScore,
		IsFakeRuleBased:   review.IsFakeRuleBased,
		FlagReasons:       verdict.Reasons,
	}, nil
}

// duplicateScore resolves the candidate's max similarity against the
// product's prior reviews, short-circuiting exact duplicates through the
// signature set
func (s *Service) duplicateScore(ctx context.Context, productID uuid.UUID, normalized, signature string) (float64, error) {
	if s.activity != nil {
		known, err := s.activity.IsKnownText(ctx, productID, signature)
		if err != nil {
			logger.WithContext(ctx).Warn("signature lookup failed, falling back to similarity scan", zap.Error(err))
		} else if known {
			return 1.0, nil
		}
	}

	corpus, err := s.repo.NormalizedTextsByProduct(ctx, productID, s.cfg.DuplicateCorpusLimit)
	if err != nil {
		return 0, fmt.Errorf("load duplicate corpus: %w", err)
	}

	return MaxSimilarity(normalized, corpus), nil
}

// recentCounts reads the sliding-window counters, falling back to SQL
// counts when Redis is unavailable. Count failures degrade to zero so a
// submission is never blocked; a stale count only weakens rate rules.
func (s *Service) recentCounts(ctx context.Context, userID, productID uuid.UUID, now time.Time) (userCount, productCount int) {
	if s.activity != nil {
		uc, uerr := s.activity.RecentUserCount(ctx, userID, now)
		pc, perr := s.activity.RecentProductCount(ctx, productID, now)
		if uerr == nil && perr == nil {
			return uc, pc
		}
		logger.WithContext(ctx).Warn("activity counters unavailable, falling back to sql counts",
			zap.NamedError("user_count_error", uerr),
			zap.NamedError("product_count_error", perr))
	}

	userCount, err := s.repo.CountRecentByUser(ctx, userID, now.Add(-s.cfg.UserRateWindow))
	if err != nil {
		logger.WithContext(ctx).Warn("user rate count failed", zap.Error(err))
	}
	productCount, err = s.repo.CountRecentByProduct(ctx, productID, now.Add(-s.cfg.ProductRateWindow))
	if err != nil {
		logger.WithContext(ctx).Warn("product rate count failed", zap.Error(err))
	}

	return userCount, productCount
}

// recordActivity updates the Redis windows and signature set, best effort
func (s *Service) recordActivity(ctx context.Context, review *Review, signature string) {
	if s.activity == nil {
		return
	}
	if err := s.activity.RecordSubmission(ctx, review.UserID, review.ProductID, review.ID, review.CreatedAt); err != nil {
		logger.WithContext(ctx).Warn("failed to record submission activity", zap.Error(err))
	}
	if err := s.activity.RememberText(ctx, review.ProductID, signature); err != nil {
		logger.WithContext(ctx).Warn("failed to store text signature", zap.Error(err))
	}
}

// GetReview retrieves a review with its verdict fields
func (s *Service) GetReview(ctx context.Context, reviewID uuid.UUID) (*Review, error) {
	review, err := s.repo.GetReviewByID(ctx, reviewID)
	if err != nil {
		if errors.Is(err, ErrReviewNotFound) {
			return nil, common.NewNotFoundError("review not found")
		}
		return nil, fmt.Errorf("load review: %w", err)
	}
	return review, nil
}

// ListProductReviews lists reviews for a product, newest first
func (s *Service) ListProductReviews(ctx context.Context, productID uuid.UUID, limit, offset int) ([]*Review, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	reviews, err := s.repo.ListReviewsByProduct(ctx, productID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}
