package detection

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Behavioral flag names
const (
	FlagBurstActivity     = "burst_activity"
	FlagSharedDevice      = "shared_device"
	FlagSharedIP          = "shared_ip"
	FlagRepeatOffender    = "repeat_offender"
	FlagLowQualityReviews = "low_quality_reviews"
	FlagOverlongReviews   = "overlong_reviews"
)

// Behavioral flag weights
const (
	weightBurstActivity     = 0.4
	weightSharedDevice      = 0.5
	weightSharedIP          = 0.5
	weightRepeatOffender    = 0.7
	weightLowQualityReviews = 0.15
	weightOverlongReviews   = 0.15
)

// BehaviorVerdict is the population-level result for one review
type BehaviorVerdict struct {
	Flags            []string `json:"flags"`
	SuspiciousScore  float64  `json:"suspicious_score"`
	IsFakeBehavioral bool     `json:"is_fake_behavioral"`
}

// Analyzer finds collusion and burst patterns across the whole review
// snapshot. It groups by user, device fingerprint, and IP with hash maps
// and sorts only within groups, keeping the pass O(n log n).
type Analyzer struct {
	burstGap           time.Duration // max gap between consecutive reviews counted as a burst
	deviceUserLimit    int           // distinct users per fingerprint before shared_device fires
	ipUserLimit        int           // distinct users per IP before shared_ip fires
	offenderLimit      int           // prior-flagged reviews before repeat_offender fires
	fakeScoreThreshold float64
	shortTextLimit     int // mean normalized length below this marks low_quality_reviews
	longTextLimit      int // mean normalized length above this marks overlong_reviews
}

// NewAnalyzer creates a behavioral analyzer with the given burst gap and
// default sharing thresholds
func NewAnalyzer(burstGap time.Duration) *Analyzer {
	if burstGap <= 0 {
		burstGap = 5 * time.Minute
	}
	return &Analyzer{
		burstGap:           burstGap,
		deviceUserLimit:    2,
		ipUserLimit:        3,
		offenderLimit:      3,
		fakeScoreThreshold: 0.7,
		shortTextLimit:     10,
		longTextLimit:      1000,
	}
}

// Analyze runs the behavioral pass over the full snapshot and returns a
// verdict per review id. Reviews must already carry their rule-based and
// classifier verdicts; repeat-offender detection depends on them.
//
// Empty device fingerprints and IPs are never grouped together: a review
// with a missing value sits in its own bucket, so unrelated users cannot
// collide into a false sharing flag.
func (a *Analyzer) Analyze(reviews []*Review) map[uuid.UUID]*BehaviorVerdict {
	verdicts := make(map[uuid.UUID]*BehaviorVerdict, len(reviews))
	flags := make(map[uuid.UUID]map[string]float64, len(reviews))
	for _, r := range reviews {
		flags[r.ID] = make(map[string]float64)
	}

	byUser := make(map[uuid.UUID][]*Review)
	byDevice := make(map[string][]*Review)
	byIP := make(map[string][]*Review)
	for _, r := range reviews {
		byUser[r.UserID] = append(byUser[r.UserID], r)
		if r.DeviceFingerprint != "" {
			byDevice[r.DeviceFingerprint] = append(byDevice[r.DeviceFingerprint], r)
		}
		if r.IPAddress != "" {
			byIP[r.IPAddress] = append(byIP[r.IPAddress], r)
		}
	}

	a.flagBursts(byUser, flags)
	a.flagSharing(byDevice, a.deviceUserLimit, FlagSharedDevice, weightSharedDevice, flags)
	a.flagSharing(byIP, a.ipUserLimit, FlagSharedIP, weightSharedIP, flags)
	a.flagRepeatOffenders(byUser, flags)
	a.flagTextLengths(byUser, flags)

	for _, r := range reviews {
		verdict := &BehaviorVerdict{Flags: make([]string, 0, len(flags[r.ID]))}
		for name, weight := range flags[r.ID] {
			verdict.Flags = append(verdict.Flags, name)
			verdict.SuspiciousScore += weight
		}
		sort.Strings(verdict.Flags)
		verdict.SuspiciousScore = clamp01(verdict.SuspiciousScore)
		// The score is the single authoritative fake signal; flags alone
		// explain but do not convict.
		verdict.IsFakeBehavioral = verdict.SuspiciousScore >= a.fakeScoreThreshold
		verdicts[r.ID] = verdict
	}

	return verdicts
}

// flagBursts sorts each user's reviews by timestamp and flags the later
// review of every consecutive pair closer than the burst gap
func (a *Analyzer) flagBursts(byUser map[uuid.UUID][]*Review, flags map[uuid.UUID]map[string]float64) {
	for _, group := range byUser {
		if len(group) < 2 {
			continue
		}
		sorted := make([]*Review, len(group))
		copy(sorted, group)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		})
		for i := 1; i < len(sorted); i++ {
			if sorted[i].CreatedAt.Sub(sorted[i-1].CreatedAt) < a.burstGap {
				flags[sorted[i].ID][FlagBurstActivity] = weightBurstActivity
			}
		}
	}
}

// flagSharing flags every review in a group whose distinct user count
// exceeds the limit
func (a *Analyzer) flagSharing(groups map[string][]*Review, limit int, flag string, weight float64, flags map[uuid.UUID]map[string]float64) {
	for _, group := range groups {
		users := make(map[uuid.UUID]struct{}, len(group))
		for _, r := range group {
			users[r.UserID] = struct{}{}
		}
		if len(users) <= limit {
			continue
		}
		for _, r := range group {
			flags[r.ID][flag] = weight
		}
	}
}

// flagRepeatOffenders flags all reviews of users whose prior-flagged
// review count (rule engine or classifier) reaches the limit
func (a *Analyzer) flagRepeatOffenders(byUser map[uuid.UUID][]*Review, flags map[uuid.UUID]map[string]float64) {
	for _, group := range byUser {
		flagged := 0
		for _, r := range group {
			if r.IsFakeRuleBased || (r.IsFakeML != nil && *r.IsFakeML) {
				flagged++
			}
		}
		if flagged < a.offenderLimit {
			continue
		}
		for _, r := range group {
			flags[r.ID][FlagRepeatOffender] = weightRepeatOffender
		}
	}
}

// flagTextLengths flags users whose reviews average out suspiciously
// short or long
func (a *Analyzer) flagTextLengths(byUser map[uuid.UUID][]*Review, flags map[uuid.UUID]map[string]float64) {
	for _, group := range byUser {
		total := 0
		for _, r := range group {
			total += len(r.NormalizedText)
		}
		mean := float64(total) / float64(len(group))

		var flag string
		var weight float64
		switch {
		case mean < float64(a.shortTextLimit):
			flag, weight = FlagLowQualityReviews, weightLowQualityReviews
		case mean > float64(a.longTextLimit):
			flag, weight = FlagOverlongReviews, weightOverlongReviews
		default:
			continue
		}
		for _, r := range group {
			flags[r.ID][flag] = weight
		}
	}
}
