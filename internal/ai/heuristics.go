package ai

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// tagLexicon maps a tag to the words that imply it.
var tagLexicon = map[string][]string{
	"sleep":    {"sleep", "slept", "nap", "naps", "napped", "bedtime", "tired", "woke", "night"},
	"meals":    {"ate", "eat", "eating", "meal", "lunch", "breakfast", "dinner", "snack", "food", "bottle", "fed"},
	"health":   {"fever", "cough", "sick", "doctor", "medicine", "medication", "rash", "allergy", "vomit", "temperature", "vaccine"},
	"mood":     {"happy", "sad", "cried", "crying", "upset", "angry", "calm", "cheerful", "frustrated", "tantrum", "laughing"},
	"play":     {"play", "played", "playing", "game", "games", "toys", "blocks", "outside", "playground"},
	"learning": {"read", "reading", "book", "books", "count", "counting", "letters", "colors", "puzzle", "learned"},
	"social":   {"friend", "friends", "shared", "sharing", "together", "hug", "classmates", "group"},
	"motor":    {"walk", "walked", "crawl", "crawled", "climb", "climbed", "run", "ran", "jump", "jumped", "balance"},
	"language": {"word", "words", "said", "talk", "talked", "babble", "sentence", "speech"},
	"behavior": {"hit", "bite", "bit", "refused", "listened", "behavior", "behaviour", "timeout"},
}

var (
	positiveWords = wordSet("happy", "great", "good", "calm", "cheerful", "smiled", "smiling", "laughing", "laughed",
		"enjoyed", "loved", "proud", "excited", "well", "better", "shared", "helped", "success", "fun", "playful")
	negativeWords = wordSet("sad", "cried", "crying", "upset", "angry", "tantrum", "frustrated", "sick", "fever",
		"tired", "refused", "hit", "bite", "bit", "worried", "scared", "pain", "vomit", "poorly", "bad", "worse")
)

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var wordRE = regexp.MustCompile(`\p{L}+`)

func words(text string) []string {
	return wordRE.FindAllString(strings.ToLower(text), -1)
}

// DeriveTags returns the sorted tags implied by the words of text.
func DeriveTags(text string) []string {
	seen := map[string]struct{}{}
	for _, w := range words(text) {
		for tag, kws := range tagLexicon {
			for _, kw := range kws {
				if w == kw {
					seen[tag] = struct{}{}
					break
				}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// EmotionScore rates text in [-1, 1] by counting positive and negative words.
// Text with neither scores 0.
func EmotionScore(text string) float64 {
	var pos, neg int
	for _, w := range words(text) {
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	score := float64(pos-neg) / float64(pos+neg)
	return math.Round(score*100) / 100
}

// MinLogsForInsights is the fewest logs the heuristics reason about.
const MinLogsForInsights = 3

// HeuristicInsights derives insights locally from tags and emotion scores.
func HeuristicInsights(logs []LogInput) []Insight {
	if len(logs) < MinLogsForInsights {
		return []Insight{{
			Title:       "Not enough data yet",
			Description: fmt.Sprintf("Add at least %d logs to start seeing insights.", MinLogsForInsights),
			Type:        InsightInfo,
			Confidence:  1,
		}}
	}

	var sum float64
	counts := map[string]int{}
	for _, l := range logs {
		sum += l.EmotionScore
		for _, t := range l.Tags {
			counts[t]++
		}
	}
	avg := sum / float64(len(logs))

	var out []Insight
	switch {
	case avg >= 0.3:
		out = append(out, Insight{
			Title:       "Positive mood overall",
			Description: fmt.Sprintf("Recent logs lean positive (average mood %.2f).", avg),
			Type:        InsightMood,
			Confidence:  0.6,
		})
	case avg <= -0.3:
		out = append(out, Insight{
			Title:       "Mood needs attention",
			Description: fmt.Sprintf("Recent logs lean negative (average mood %.2f). Consider discussing with the care team.", avg),
			Type:        InsightConcern,
			Confidence:  0.6,
		})
	default:
		out = append(out, Insight{
			Title:       "Stable mood",
			Description: fmt.Sprintf("Recent logs show a balanced mood (average %.2f).", avg),
			Type:        InsightMood,
			Confidence:  0.5,
		})
	}

	if tag, n := topTag(counts); n >= 2 {
		out = append(out, Insight{
			Title:       fmt.Sprintf("Frequent topic: %s", tag),
			Description: fmt.Sprintf("%d of the last %d logs mention %s.", n, len(logs), tag),
			Type:        InsightPattern,
			Confidence:  math.Min(0.9, float64(n)/float64(len(logs))),
		})
	}
	if counts["health"] >= 2 {
		out = append(out, Insight{
			Title:       "Repeated health notes",
			Description: "Several logs mention health topics. Keep the doctor informed.",
			Type:        InsightConcern,
			Confidence:  0.5,
		})
	}
	return out
}

func topTag(counts map[string]int) (string, int) {
	var best string
	var n int
	for t, c := range counts {
		if c > n || (c == n && t < best) {
			best, n = t, c
		}
	}
	return best, n
}

// FallbackSummary joins log titles and descriptions, newest as given, and
// clips the result to maxRunes.
func FallbackSummary(logs []LogInput, maxRunes int) string {
	if len(logs) == 0 {
		return "No logs recorded yet."
	}
	parts := make([]string, 0, len(logs))
	for _, l := range logs {
		p := strings.TrimSpace(l.Title)
		if d := strings.TrimSpace(l.Description); d != "" {
			p += ": " + d
		}
		if p != "" {
			parts = append(parts, p)
		}
	}
	s := strings.Join(parts, ". ")
	if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
		s = string([]rune(s)[:maxRunes-1]) + "…"
	}
	return s
}
