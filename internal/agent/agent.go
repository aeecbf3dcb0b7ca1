// Package agent answers questions about uploaded documents. It retrieves
// context through the retrieval kernel, formats the eino chat template, and
// calls the configured chat model once per question.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// NotFoundAnswer is returned when no document produced any context.
	NotFoundAnswer = "No relevant information found."

	// FallbackAnswer is returned when the model produced an empty response.
	FallbackAnswer = "Sorry, I couldn't find an answer."
)

// systemPrompt sets the assistant persona.
const systemPrompt = `You are an intelligent AI assistant. Use the context below to answer accurately.`

// userPrompt carries the retrieved context and the question. Placeholders
// are filled by the FString formatter; values are inserted verbatim.
const userPrompt = `Context:
{context}

Question: {question}

Answer concisely based only on the given context. If unsure, respond with "I don't know."`

// Retriever produces the context for a question. *rag.Retriever satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, q rag.Query) (*rag.Result, error)
}

// Config holds the dependencies required to construct a DocumentAgent.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel

	// Retriever supplies document context for each question.
	Retriever Retriever
}

// Answer is the outcome of one question.
type Answer struct {
	// Text is the model's answer or one of the fixed fallback messages.
	Text string `json:"answer"`

	// Found is false when no document produced context. The model is not
	// called in that case.
	Found bool `json:"found"`

	// Sources lists the documents whose chunks made up the context.
	Sources []string `json:"sources"`
}

// DocumentAgent is a single-turn question answering agent over the
// documents currently in the registry.
type DocumentAgent struct {
	// chatModel generates the answer from the formatted prompt.
	chatModel model.BaseChatModel

	// retriever builds the context block.
	retriever Retriever

	// template renders the system and user messages.
	template prompt.ChatTemplate
}

// New constructs a DocumentAgent from the provided Config.
func New(cfg *Config) (*DocumentAgent, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("agent: ChatModel must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("agent: Retriever must not be nil")
	}

	return &DocumentAgent{
		chatModel: cfg.ChatModel,
		retriever: cfg.Retriever,
		template: prompt.FromMessages(schema.FString,
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(userPrompt),
		),
	}, nil
}

// Ask answers q from the selected documents. Validation and embedding
// errors from retrieval are returned unchanged; a model failure is wrapped
// with rag.ErrGeneration.
func (a *DocumentAgent) Ask(ctx context.Context, q rag.Query) (*Answer, error) {
	log := logging.FromContext(ctx)

	res, err := a.retriever.Retrieve(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("agent: retrieve: %w", err)
	}
	if !res.Found {
		log.Info("agent: no relevant context", slog.Int("documents_requested", len(q.Documents)))
		return &Answer{Text: NotFoundAnswer, Found: false, Sources: []string{}}, nil
	}

	messages, err := a.buildMessages(ctx, strings.TrimSpace(q.Question), res.Context)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := a.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("agent: generate: %w: %w", rag.ErrGeneration, err)
	}

	text := ""
	if out != nil {
		text = strings.TrimSpace(out.Content)
	}
	log.Info("agent: answer generated",
		slog.Any("sources", res.Sources),
		slog.Int("prompt_tokens_est", budget.EstimateMessages(messages)),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("empty", text == ""),
	)
	if text == "" {
		text = FallbackAnswer
	}
	return &Answer{Text: text, Found: true, Sources: res.Sources}, nil
}

// buildMessages renders the chat template for a question and its context.
func (a *DocumentAgent) buildMessages(ctx context.Context, question, contextText string) ([]*schema.Message, error) {
	messages, err := a.template.Format(ctx, map[string]any{
		"context":  contextText,
		"question": question,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: format prompt: %w", err)
	}
	return messages, nil
}
