package usecase

import "github.com/kirillkom/docs-assistant/internal/core/domain"

const ragPersona = `You are a friendly and knowledgeable AI assistant for the product documentation.
Answer the user's question using only the provided context sources.
If the context does not contain the answer, say so plainly and suggest how the user could rephrase.
Reference the source titles you relied on. Keep answers concise and use markdown for steps or code.`

var personaByIntent = map[domain.Intent]string{
	domain.IntentGreeting: "You are a friendly AI assistant. Greet the user warmly and ask how you can help them today. Do NOT use search results.",
	domain.IntentClosure:  "The user is finishing the conversation or saying thanks. Respond politely and wish them a great day!",
	domain.IntentOffTopic: "You are a helpful AI assistant. The user has asked something outside your specialized knowledge of the uploaded documents. Politely inform them that you are focused on the documentation and ask if they have questions about that.",
}

// Replies used for direct intents when no model is configured, or when the
// model fails before producing anything.
var staticReplies = map[domain.Intent]string{
	domain.IntentGreeting: "Hello! How can I help you today?",
	domain.IntentClosure:  "You're welcome! Have a great day!",
	domain.IntentOffTopic: "I'm focused on the technical documentation provided.",
}

const (
	noContextReply   = "I couldn't find specific info in the docs. Please rephrase."
	authRecoveryNote = "[Auth Error: Token refreshed, please retry request]"
)

func personaFor(intent domain.Intent) string {
	if p, ok := personaByIntent[intent]; ok {
		return p
	}
	return ragPersona
}
