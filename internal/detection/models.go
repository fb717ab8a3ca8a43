package detection

import (
	"time"

	"github.com/google/uuid"
)

// LabelSource identifies which layer produced a review's current label
type LabelSource string

const (
	LabelSourceRuleEngine  LabelSource = "rule_engine"
	LabelSourceBatchFusion LabelSource = "batch_fusion"
)

// BatchMode selects which reviews an analysis run reconsiders
type BatchMode string

const (
	// BatchModeFull re-derives verdicts for the entire corpus
	BatchModeFull BatchMode = "full"
	// BatchModeIncremental only considers reviews without a final verdict
	BatchModeIncremental BatchMode = "incremental"
)

// Review represents a product review with its fraud verdict fields.
// ProductID and UserID are plain keys; the engine never loads full
// product or user graphs.
type Review struct {
	ID                uuid.UUID `json:"id" db:"id"`
	ProductID         uuid.UUID `json:"product_id" db:"product_id"`
	UserID            uuid.UUID `json:"user_id" db:"user_id"`
	Rating            int       `json:"rating" db:"rating"`
	Text              string    `json:"text" db:"review_text"`
	NormalizedText    string    `json:"normalized_text" db:"normalized_text"`
	IPAddress         string    `json:"ip_address" db:"ip_address"`
	DeviceFingerprint string    `json:"device_fingerprint" db:"device_fingerprint"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`

	// Submission-time verdict, write-once
	DuplicateScore    float64         `json:"duplicate_score" db:"duplicate_score"`
	RuleFlags         map[string]bool `json:"rule_flags" db:"rule_flags"`
	WeightedRuleScore float64         `json:"weighted_rule_score" db:"weighted_rule_score"`
	FlagReasons       []string        `json:"flag_reasons" db:"flag_reasons"`
	IsFakeRuleBased   bool            `json:"is_fake_rule_based" db:"is_fake_rule_based"`

	// Batch-run verdicts, nil until a run has executed
	IsFakeML     *bool   `json:"is_fake_ml,omitempty" db:"is_fake_ml"`
	MLConfidence float64 `json:"ml_confidence" db:"ml_confidence"`

	BehaviorFlags   []string `json:"behavior_flags" db:"behavior_flags"`
	SuspiciousScore float64  `json:"suspicious_score" db:"suspicious_score"`

	IsFakeFinal *bool       `json:"is_fake_final,omitempty" db:"is_fake_final"`
	LabelSource LabelSource `json:"label_source" db:"label_source"`
}

// User carries the user fields the engine needs; everything else stays
// with the account service
type User struct {
	ID       uuid.UUID `json:"id" db:"id"`
	SignupAt time.Time `json:"signup_at" db:"created_at"`
}

// SubmitReviewRequest is the submission payload
type SubmitReviewRequest struct {
	ProductID         string `json:"product_id" binding:"required,uuid"`
	UserID            string `json:"user_id" binding:"required,uuid"`
	Rating            int    `json:"rating" binding:"required,gte=1,lte=5"`
	Text              string `json:"text" binding:"required"`
	IPAddress         string `json:"ip_address"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

// SubmissionVerdict is returned to the API layer at submission time
type SubmissionVerdict struct {
	ReviewID          uuid.UUID       `json:"review_id"`
	DuplicateScore    float64         `json:"duplicate_score"`
	RuleFlags         map[string]bool `json:"rule_flags"`
	WeightedRuleScore float64         `json:"weighted_rule_score"`
	IsFakeRuleBased   bool            `json:"is_fake_rule_based"`
	FlagReasons       []string        `json:"flag_reasons"`
}

// BatchSummary describes the outcome of one analysis run
type BatchSummary struct {
	Mode           BatchMode   `json:"mode"`
	TotalAnalyzed  int         `json:"total_analyzed"`
	FakeCount      int         `json:"fake_count"`
	FlaggedReviews []uuid.UUID `json:"flagged_reviews"`
	FlaggedUsers   []uuid.UUID `json:"flagged_users"`
	StartedAt      time.Time   `json:"started_at"`
	Duration       string      `json:"duration"`
}

// clamp01 keeps derived scores inside [0,1]
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
