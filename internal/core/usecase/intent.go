package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
	"github.com/kirillkom/docs-assistant/internal/core/ports"
)

type intentRule struct {
	intent   domain.Intent
	patterns []*regexp.Regexp
}

func mustPatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		out[i] = regexp.MustCompile(expr)
	}
	return out
}

// Evaluated in order against the lower-cased, trimmed query; first match wins.
var intentRules = []intentRule{
	{intent: domain.IntentGreeting, patterns: mustPatterns(
		`^hi$`, `^hello`, `^hey`, `^good morning`, `^good afternoon`, `^how are you`, `^what's up`, `^yo$`, `^greetings`,
	)},
	{intent: domain.IntentClosure, patterns: mustPatterns(
		`^bye`, `^goodbye`, `^that's all`, `^no more`, `^thanks`, `^thank you`, `^see you`, `^ciao`, `^done`,
	)},
	{intent: domain.IntentOffTopic, patterns: mustPatterns(
		`^tell me a joke`, `^sing a song`, `^what is your favorite color`, `^who won the (.*) game`, `^weather in`,
	)},
}

const (
	intentTemperature      = 0
	defaultIntentMaxTokens = 10
)

// IntentClassifier resolves a query to an intent: pattern rules first, then an
// optional model call, then keyword guesses when the call fails.
type IntentClassifier struct {
	model     ports.TextCompleter
	maxTokens int
}

// NewIntentClassifier builds a classifier. A nil model means no network call is
// ever made; unmatched queries are RAG queries.
func NewIntentClassifier(model ports.TextCompleter, maxTokens int) *IntentClassifier {
	if maxTokens <= 0 {
		maxTokens = defaultIntentMaxTokens
	}
	return &IntentClassifier{model: model, maxTokens: maxTokens}
}

func (c *IntentClassifier) Classify(ctx context.Context, text string) domain.Intent {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if intent, ok := matchIntentRules(normalized); ok {
		return intent
	}
	if c.model == nil {
		return domain.IntentRAGQuery
	}

	label, err := c.model.Complete(ctx, ports.CompletionRequest{
		Prompt:      buildIntentPrompt(text),
		Temperature: intentTemperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		intent := keywordIntent(normalized)
		slog.Warn("intent_classification_failed", "fallback_intent", intent, "error", err)
		return intent
	}
	return domain.ParseIntent(strings.Trim(label, " \t\r\n.\"'`"))
}

func matchIntentRules(normalized string) (domain.Intent, bool) {
	for _, rule := range intentRules {
		for _, pattern := range rule.patterns {
			if pattern.MatchString(normalized) {
				return rule.intent, true
			}
		}
	}
	return "", false
}

// keywordIntent is the coarse guess used when the classification call fails.
// Keywords are matched on whole words so "this" never reads as "hi".
func keywordIntent(normalized string) domain.Intent {
	padded := " " + strings.Join(strings.FieldsFunc(normalized, func(r rune) bool {
		return !(r == '\'' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), " ") + " "

	for _, kw := range []string{"bye", "thanks", "thank you"} {
		if strings.Contains(padded, " "+kw+" ") {
			return domain.IntentClosure
		}
	}
	for _, kw := range []string{"hello", "hi"} {
		if strings.Contains(padded, " "+kw+" ") {
			return domain.IntentGreeting
		}
	}
	return domain.IntentRAGQuery
}

func buildIntentPrompt(query string) string {
	return fmt.Sprintf(`Classify the following user query into one of these categories:
- GREETING: General greetings like "hello", "hi", "how are you".
- CLOSURE: Goodbyes, thank yous, or saying "that's all".
- OFF_TOPIC: Questions not related to tech docs or software.
- RAG_QUERY: A question or request for info about documentation.

User Query: %q

Return ONLY the category name in uppercase.
Category:`, query)
}
