package agents

import "strings"

// Sentiment is a coarse keyword-derived sentiment label.
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
	SentimentNegative Sentiment = "NEGATIVE"
	SentimentAngry    Sentiment = "ANGRY"
)

// Hostile reports whether the sentiment warrants human attention.
func (s Sentiment) Hostile() bool {
	return s == SentimentNegative || s == SentimentAngry
}

var (
	angryKeywords    = []string{"angry", "furious", "outraged", "terrible", "worst", "hate", "disgusting"}
	negativeKeywords = []string{"bad", "poor", "disappointed", "unhappy", "problem", "issue", "broken"}
	positiveKeywords = []string{"great", "excellent", "love", "amazing", "perfect", "thank"}
)

// AnalyzeSentiment classifies text by keyword lists, checked in order of
// severity so an angry message is never downgraded by a polite closing.
func AnalyzeSentiment(text string) Sentiment {
	lower := strings.ToLower(text)

	for _, kw := range angryKeywords {
		if strings.Contains(lower, kw) {
			return SentimentAngry
		}
	}
	for _, kw := range negativeKeywords {
		if strings.Contains(lower, kw) {
			return SentimentNegative
		}
	}
	for _, kw := range positiveKeywords {
		if strings.Contains(lower, kw) {
			return SentimentPositive
		}
	}
	return SentimentNeutral
}
