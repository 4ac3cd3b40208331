package classify

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Resolver is the external fallback for descriptions no rule matched: a
// place/business lookup that turns a raw merchant string into a human label
// ("coffee shop", "supermarket"). The label is then mapped through the rule
// table by the classifier. Implementations may fail freely; the classifier
// degrades to the default category.
type Resolver interface {
	ResolveLabel(ctx context.Context, description string) (string, error)
}

// GeminiResolver resolves merchant descriptions with the Gemini API.
type GeminiResolver struct {
	model string
}

// NewGeminiResolver creates a resolver using the given model name. The API
// key is taken from the environment by the genai client.
func NewGeminiResolver(model string) *GeminiResolver {
	return &GeminiResolver{model: model}
}

// ResolveLabel asks the model what kind of business the description refers to.
func (r *GeminiResolver) ResolveLabel(ctx context.Context, description string) (string, error) {
	prompt :=
		"You are a merchant lookup service for Korean bank transaction descriptions.\n\n" +
			"Task:\n" +
			"- The input is one raw transaction description from a bank or card statement.\n" +
			"- Answer with the kind of business it refers to, as a short generic label.\n" +
			"- Examples of labels: \"coffee shop\", \"supermarket\", \"taxi\", \"hospital\", \"salary\".\n\n" +
			"Rules:\n" +
			"- Answer with the label ONLY: no punctuation, no explanation, no Markdown.\n" +
			"- If you cannot tell what the business is, answer exactly: unknown\n\n" +
			"Description: " + description + "\n"

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return "", fmt.Errorf("ResolveLabel: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, r.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("ResolveLabel: generate content: %w", err)
	}

	label := cleanModelLabel(resp.Text())
	if label == "" || label == "unknown" {
		return "", fmt.Errorf("ResolveLabel: no usable label for %q", description)
	}
	return label, nil
}

// cleanModelLabel strips the wrappers models add despite instructions:
// Markdown fences, surrounding quotes, trailing periods, extra lines.
func cleanModelLabel(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	// Keep only the first line if the model elaborated anyway.
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		s = s[:idx]
	}

	s = strings.Trim(s, "\"'` .")
	return strings.ToLower(strings.TrimSpace(s))
}

var _ Resolver = (*GeminiResolver)(nil)
