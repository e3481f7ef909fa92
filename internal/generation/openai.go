package generation

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

const answerPrompt = `Answer the question using only the provided context.
If the context does not contain enough information, say so explicitly and
answer as best you can from what is given.

Context:
%s

Question: %s`

const noContextPrompt = `No supporting documents were retrieved for this
question. State that the answer is not backed by indexed sources, then answer
from general knowledge if possible.

Question: %s`

// OpenAI generates answers with the OpenAI chat completions API.
type OpenAI struct {
	client *openai.Client
	model  openai.ChatModel
}

// NewOpenAI creates a generator sharing an existing OpenAI client.
// An empty model defaults to GPT-4o-mini.
func NewOpenAI(client *openai.Client, model string) *OpenAI {
	m := openai.ChatModelGPT4oMini
	if model != "" {
		m = openai.ChatModel(model)
	}
	return &OpenAI{client: client, model: m}
}

// Generate implements Generator.
func (o *OpenAI) Generate(ctx context.Context, query, contextText string) (string, error) {
	prompt := fmt.Sprintf(noContextPrompt, query)
	if contextText != "" {
		prompt = fmt.Sprintf(answerPrompt, contextText, query)
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: o.model,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
