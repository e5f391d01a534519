// Package llm provides a provider-neutral abstraction over chat-completion
// APIs so the chat proxy does not depend on any one vendor SDK.
//
// # Core Concepts
//
//  1. Messages: a Message is a role plus plain text. Mira only exchanges text,
//     so there are no tool or image blocks.
//
//  2. Client Interface: Client.Synchronous sends one Request and returns the
//     complete Response. Implementations live in the openai (OpenRouter and
//     any OpenAI-compatible endpoint), anthropic and ollama subpackages.
//
//  3. Middleware: the Middleware interface adds cross-cutting concerns such
//     as logging around a Client without modifying provider implementations.
//
//  4. Errors: the Error type classifies provider failures (rate limit, auth,
//     timeout, ...) so callers can react without parsing vendor errors.
//
//  5. Registry: ProviderRegistry turns configuration into a ClientKey naming
//     the provider, model and credentials to use.
//
// Usage Example
//
//	client := llm.WrapWithMiddleware(baseClient, llm.NewLoggingMiddleware(logger))
//
//	resp, err := client.Synchronous(ctx, &llm.Request{
//	    Model:    "mistralai/mistral-7b-instruct:free",
//	    System:   "You are Mira.",
//	    Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "Hello!")},
//	})
package llm
