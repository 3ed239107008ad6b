package metrics

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Usage is the token accounting block returned with every chat completion.
type Usage = openai.Usage

// ModelPrice is the USD cost per 1000 tokens.
type ModelPrice struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k" json:"prompt_per_1k"`
	CompletionPer1K float64 `yaml:"completion_per_1k" json:"completion_per_1k"`
}

// PriceTable maps model names to prices. Lookups fall back to the longest
// key that prefixes the model, so "gpt-4o-2024-08-06" is priced as "gpt-4o".
type PriceTable map[string]ModelPrice

// DefaultPriceTable returns list prices for the models the platform routes to.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		openai.GPT4o:         {PromptPer1K: 0.0025, CompletionPer1K: 0.01},
		openai.GPT4oMini:     {PromptPer1K: 0.00015, CompletionPer1K: 0.0006},
		openai.GPT4Turbo:     {PromptPer1K: 0.01, CompletionPer1K: 0.03},
		openai.GPT3Dot5Turbo: {PromptPer1K: 0.0005, CompletionPer1K: 0.0015},
	}
}

// Lookup returns the price for model and whether one was found.
func (t PriceTable) Lookup(model string) (ModelPrice, bool) {
	if price, ok := t[model]; ok {
		return price, true
	}

	best := ""
	for name := range t {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelPrice{}, false
	}
	return t[best], true
}

// Cost returns the USD cost of usage on model. Unknown models cost 0.
func (t PriceTable) Cost(model string, usage Usage) float64 {
	price, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	return float64(usage.PromptTokens)/1000*price.PromptPer1K +
		float64(usage.CompletionTokens)/1000*price.CompletionPer1K
}
