package server

import (
	"regexp"
	"strings"
	"unicode"
)

// unrelatedKeywords flag very short queries that are clearly not data
// analysis questions.
var unrelatedKeywords = []string{
	"recipe", "cooking", "how to cook", "ingredients",
	"weather", "forecast", "temperature",
	"joke", "funny", "meme", "lol",
	"what is love", "meaning of life", "philosophy",
	"random", "test", "asdf", "qwerty",
	"hello world", "hi there", "just testing",
}

var absurdPatterns = []*regexp.Regexp{
	regexp.MustCompile(`tell me (a|the) (story|joke|tale)`),
	regexp.MustCompile(`sing (me|a|the)`),
	regexp.MustCompile(`what (color|animal|food) (do|does|is)`),
	regexp.MustCompile(`draw|paint|sketch`),
	regexp.MustCompile(`play (music|song|game)`),
}

var vaguePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^what('s| is) (our|the) (performance|status|situation)( like)?\??$`),
	regexp.MustCompile(`^how (are|is) (we|things|it)( doing)?\??$`),
	regexp.MustCompile(`^tell me (about|something) (our|the)`),
}

// IsQueryAbsurd checks whether a query is nonsensical or clearly unrelated to
// data analysis. It returns the rejection reason when the query should be
// refused.
func IsQueryAbsurd(query string) (bool, string) {
	if strings.TrimSpace(query) == "" {
		return true, "Query is empty"
	}

	queryLower := strings.ToLower(strings.TrimSpace(query))

	// Mostly non-alphabetic input is likely random characters.
	compact := strings.ReplaceAll(query, " ", "")
	if len(compact) > 10 {
		alpha := 0
		for _, r := range compact {
			if unicode.IsLetter(r) {
				alpha++
			}
		}
		if float64(alpha)/float64(len([]rune(compact))) < 0.3 {
			return true, "Query contains too many non-alphabetic characters"
		}
	}

	// A single character dominating the input (e.g. "aaaaaa") is gibberish.
	if len(query) > 5 {
		counts := map[rune]int{}
		maxRepeat := 0
		for _, r := range compact {
			counts[r]++
			if counts[r] > maxRepeat {
				maxRepeat = counts[r]
			}
		}
		if float64(maxRepeat) > float64(len([]rune(compact)))*0.7 {
			return true, "Query contains too many repeated characters"
		}
	}

	if len(strings.Fields(queryLower)) <= 3 {
		for _, keyword := range unrelatedKeywords {
			if strings.Contains(queryLower, keyword) {
				return true, "Query appears to be unrelated to data analysis: '" + keyword + "'"
			}
		}
	}

	for _, pattern := range absurdPatterns {
		if pattern.MatchString(queryLower) {
			return true, "Query is not a data analysis question"
		}
	}

	return false, ""
}

// IsQueryTooAmbiguous checks whether a query is too vague for meaningful
// analysis. Ambiguous queries are allowed through but flagged so the caller
// can log a suggestion.
func IsQueryTooAmbiguous(query string) (bool, string) {
	queryLower := strings.ToLower(strings.TrimSpace(query))

	for _, pattern := range vaguePatterns {
		if pattern.MatchString(queryLower) {
			return true, "Query is too vague. Please specify what metrics or data you want analyzed " +
				"(e.g., 'What are our revenue trends?' or 'Analyze profit margins')."
		}
	}
	return false, ""
}
