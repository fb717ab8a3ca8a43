package detection

import (
	"crypto/sha256"
	"encoding/hex"
)

// SequenceRatio returns a symmetric similarity ratio in [0,1] between two
// strings: 2*L/(len(a)+len(b)) where L is the length of the longest common
// subsequence. Identical strings score 1.0; strings with no characters in
// common score 0.0.
func SequenceRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}

	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	lcs := prev[len(rb)]
	return float64(2*lcs) / float64(len(ra)+len(rb))
}

// MaxSimilarity scans the corpus and returns the highest SequenceRatio
// against the candidate. An empty corpus scores 0.0.
//
// The scan is O(corpus × text²); the service bounds the corpus per product
// (DuplicateCorpusLimit) and short-circuits exact duplicates through the
// Redis signature set before it ever reaches this scan. Corpora past that
// bound need an approximate index instead of a linear pass.
func MaxSimilarity(candidate string, corpus []string) float64 {
	best := 0.0
	for _, prior := range corpus {
		if r := SequenceRatio(candidate, prior); r > best {
			best = r
			if best >= 1.0 {
				break
			}
		}
	}
	return clamp01(best)
}

// Signature returns a SHA-256 hex digest of normalized text, used as the
// exact-duplicate set member
func Signature(normalized string) string {
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:])
}
