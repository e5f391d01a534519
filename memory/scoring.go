package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"
)

const (
	baseImportance    = 0.5
	duplicateBoost    = 0.1
	summaryMaxChars   = 120
	summaryMinChars   = 10
	refWeight         = 0.05
	refWeightCap      = 0.2
	semanticHashChars = 16
)

// Importance scores a record from its tags, type and refs. The permanent tag
// short-circuits every other modifier.
func Importance(tags []string, typ Type, refs []string) float64 {
	if lo.Contains(tags, TagPermanent) {
		return 1.0
	}

	score := baseImportance
	if lo.Contains(tags, "insight") {
		score += 0.3
	}
	if lo.Contains(tags, "urgent") {
		score += 0.2
	}
	if lo.Contains(tags, "emotion") {
		score += 0.1
	}

	switch typ {
	case TypeInsight:
		score += 0.2
	case TypeAction:
		score += 0.1
	}

	score += math.Min(refWeightCap, refWeight*float64(len(refs)))
	return clampScore(score)
}

// boost raises an importance by the duplicate increment, capped at 1.0.
func boost(importance float64) float64 {
	return clampScore(importance + duplicateBoost)
}

// clampScore caps at 1.0 and rounds away float noise such as 0.7999999.
func clampScore(v float64) float64 {
	return math.Min(1.0, math.Round(v*1e9)/1e9)
}

var (
	nonWord    = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// SemanticHash fingerprints content by its set of words: case, punctuation
// and word order do not change the result.
func SemanticHash(content string) string {
	normalized := strings.ToLower(content)
	normalized = nonWord.ReplaceAllString(normalized, "")
	normalized = strings.TrimSpace(whitespace.ReplaceAllString(normalized, " "))

	words := strings.Split(normalized, " ")
	sort.Strings(words)

	sum := sha256.Sum256([]byte(strings.Join(words, " ")))
	return hex.EncodeToString(sum[:])[:semanticHashChars]
}

var sentenceEnd = regexp.MustCompile(`[.!?]+`)

// Summarize derives a summary: the first sentence when it is longer than ten
// characters, otherwise the content itself, cut to 120 characters.
func Summarize(content string) string {
	first := sentenceEnd.Split(content, 2)[0]
	if len([]rune(first)) > summaryMinChars {
		return truncate(first, summaryMaxChars)
	}
	return truncate(content, summaryMaxChars)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
