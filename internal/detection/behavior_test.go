package detection

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// makeReview builds a snapshot review with sensible text so the length
// heuristics stay quiet unless a test wants them
func makeReview(userID uuid.UUID, createdAt time.Time) *Review {
	return &Review{
		ID:             uuid.New(),
		ProductID:      uuid.New(),
		UserID:         userID,
		NormalizedText: "solid product arrived on time works as described",
		CreatedAt:      createdAt,
	}
}

func TestAnalyzeBurstFlagsLaterReviews(t *testing.T) {
	user := uuid.New()
	reviews := make([]*Review, 0, 5)
	for i := 0; i < 5; i++ {
		reviews = append(reviews, makeReview(user, baseTime.Add(time.Duration(i)*30*time.Second)))
	}

	verdicts := NewAnalyzer(5 * time.Minute).Analyze(reviews)

	assert.NotContains(t, verdicts[reviews[0].ID].Flags, FlagBurstActivity, "first review of a burst is not flagged")
	for i := 1; i < 5; i++ {
		assert.Contains(t, verdicts[reviews[i].ID].Flags, FlagBurstActivity, "review %d should carry the burst flag", i+1)
	}
}

func TestAnalyzeNoBurstForSpacedReviews(t *testing.T) {
	user := uuid.New()
	reviews := []*Review{
		makeReview(user, baseTime),
		makeReview(user, baseTime.Add(20*time.Minute)),
		makeReview(user, baseTime.Add(50*time.Minute)),
	}

	verdicts := NewAnalyzer(5 * time.Minute).Analyze(reviews)

	for _, r := range reviews {
		assert.NotContains(t, verdicts[r.ID].Flags, FlagBurstActivity)
	}
}

func TestAnalyzeSharedDevice(t *testing.T) {
	fingerprint := "device-abc"
	reviews := []*Review{}
	for i := 0; i < 3; i++ {
		r := makeReview(uuid.New(), baseTime.Add(time.Duration(i)*time.Hour))
		r.DeviceFingerprint = fingerprint
		reviews = append(reviews, r)
	}

	verdicts := NewAnalyzer(5 * time.Minute).Analyze(reviews)

	for _, r := range reviews {
		assert.Contains(t, verdicts[r.ID].Flags, FlagSharedDevice)
		assert.InDelta(t, 0.5, verdicts[r.ID].SuspiciousScore, 1e-9)
	}
}

func TestAnalyzeSingleUserDeviceNeverFlagged(t *testing.T) {
	user := uuid.New()
	reviews := []*Review{}
	for i := 0; i < 4; i++ {
		r := makeReview(user, baseTime.Add(time.Duration(i)*time.Hour))
		r.DeviceFingerprint = "my-own-phone"
		reviews = append(reviews, r)
	}

	verdicts := NewAnalyzer(5 * time.Minute).Analyze(reviews)

	for _, r := range reviews {
		assert.NotContains(t, verdicts[r.ID].Flags, FlagSharedDevice)
	}
}

func TestAnalyzeEmptyFingerprintsNeverMerge(t *testing.T) {
	reviews := []*Review{}
	for i := 0; i < 5; i++ {
		r := makeReview(uuid.New(), baseTime.Add(time.Duration(i)*time.Hour))
		r.DeviceFingerprint = ""
		r.IPAddress = ""
		reviews = append(reviews, r)
	}

	verdicts := NewAnalyzer(5 * time.Minute).Analyze(reviews)

	for _, r := range reviews {
		assert.NotContains(t, verdicts[r.ID].Flags, FlagSharedDevice)
		assert.NotContains(t, verdicts[r.ID].Flags, FlagSharedIP)
	}
}

func TestAnalyzeSharedIPNeedsFourDistinctUsers(t *testing.T) {
	ip := "198.51.100.7"

	// Three distinct users on one IP stays under the threshold
	three := []*Review{}
	for i := 0; i < 3; i++ {
		r := makeReview(uuid.New(), baseTime.Add(time.Duration(i)*time.Hour))
		r.IPAddress = ip
		three = append(three, r)
	}
	verdicts := NewAnalyzer(5 * time.Minute).Analyze(three)
	for _, r := range three {
		assert.NotContains(t, verdicts[r.ID].Flags, FlagSharedIP)
	}

	// A fourth user pushes it over
	four := append(three, func() *Review {
		r := makeReview(uuid.New(), baseTime.Add(4*time.Hour))
		r.IPAddress = ip
		return r
	}())
	verdicts = NewAnalyzer(5 * time.Minute).Analyze(four)
	for _, r := range four {
		assert.Contains(t, verdicts[r.ID].Flags, FlagSharedIP)
	}
}

func TestAnalyzeRepeatOffender(t *testing.T) {
	user := uuid.New()
	mlFake := true
	reviews := []*Review{}
	for i := 0; i < 4; i++ {
		r := makeReview(user, baseTime.Add(time.Duration(i)*time.Hour))
		switch i {
		case 0:
			r.IsFakeRuleBased = true
		case 1:
			r.IsFakeML = &mlFake
		case 2:
			r.IsFakeRuleBased = true
		}
		reviews = append(reviews, r)
	}

	verdicts := NewAnalyzer(5 * time.Minute).Analyze(reviews)

	for _, r := range reviews {
		verdict := verdicts[r.ID]
		assert.Contains(t, verdict.Flags, FlagRepeatOffender)
		assert.InDelta(t, 0.7, verdict.SuspiciousScore, 1e-9)
		assert.True(t, verdict.IsFakeBehavioral, "repeat offender score reaches the fake threshold")
	}
}

func TestAnalyzeTwoFlaggedReviewsIsNotARepeatOffender(t *testing.T) {
	user := uuid.New()
	reviews := []*Review{}
	for i := 0; i < 3; i++ {
		r := makeReview(user, baseTime.Add(time.Duration(i)*time.Hour))
		r.IsFakeRuleBased = i < 2
		reviews = append(reviews, r)
	}

	verdicts := NewAnalyzer(5 * time.Minute).Analyze(reviews)

	for _, r := range reviews {
		assert.NotContains(t, verdicts[r.ID].Flags, FlagRepeatOffender)
	}
}

func TestAnalyzeTextLengthHeuristics(t *testing.T) {
	shortUser := uuid.New()
	longUser := uuid.New()

	short1 := makeReview(shortUser, baseTime)
	short1.NormalizedText = "ok"
	short2 := makeReview(shortUser, baseTime.Add(time.Hour))
	short2.NormalizedText = "bad"

	long1 := makeReview(longUser, baseTime)
	long1.NormalizedText = ""
	for i := 0; i < 150; i++ {
		long1.NormalizedText += fmt.Sprintf("word%d ", i)
	}

	verdicts := NewAnalyzer(5 * time.Minute).Analyze([]*Review{short1, short2, long1})

	assert.Contains(t, verdicts[short1.ID].Flags, FlagLowQualityReviews)
	assert.Contains(t, verdicts[short2.ID].Flags, FlagLowQualityReviews)
	assert.Contains(t, verdicts[long1.ID].Flags, FlagOverlongReviews)
}

func TestAnalyzeScoreCappedAtOne(t *testing.T) {
	// One user, shared device and IP, prior flags, and a burst: the raw
	// weight sum exceeds 1.0 and must be capped.
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	reviews := []*Review{}
	for i, user := range users {
		for j := 0; j < 4; j++ {
			r := makeReview(user, baseTime.Add(time.Duration(i*4+j)*10*time.Second))
			r.DeviceFingerprint = "shared-device"
			r.IPAddress = "192.0.2.1"
			r.IsFakeRuleBased = true
			reviews = append(reviews, r)
		}
	}

	verdicts := NewAnalyzer(5 * time.Minute).Analyze(reviews)

	for _, verdict := range verdicts {
		assert.LessOrEqual(t, verdict.SuspiciousScore, 1.0)
	}
}

func TestAnalyzeScoreBelowThresholdIsNotFake(t *testing.T) {
	// shared_device alone scores 0.5, under the 0.7 threshold
	reviews := []*Review{}
	for i := 0; i < 3; i++ {
		r := makeReview(uuid.New(), baseTime.Add(time.Duration(i)*time.Hour))
		r.DeviceFingerprint = "family-tablet"
		reviews = append(reviews, r)
	}

	verdicts := NewAnalyzer(5 * time.Minute).Analyze(reviews)

	for _, r := range reviews {
		verdict := verdicts[r.ID]
		require.Contains(t, verdict.Flags, FlagSharedDevice)
		assert.False(t, verdict.IsFakeBehavioral)
	}
}

func TestAnalyzeEmptySnapshot(t *testing.T) {
	verdicts := NewAnalyzer(5 * time.Minute).Analyze(nil)
	assert.Empty(t, verdicts)
}
