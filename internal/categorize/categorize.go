// Package categorize maps free-text expense labels onto the fixed
// category set.
package categorize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/averko/moneypenny/internal/ledger"
	"github.com/averko/moneypenny/internal/llm"
)

// Classifier assigns a category to a label. Implementations are total:
// any input string, including the empty string, yields a member of the
// category set. Classify never fails its caller.
type Classifier interface {
	Classify(ctx context.Context, label string) ledger.Category
}

// ModelClassifier asks the language model with a closed-set
// instruction. Models do not reliably constrain output to an enum, so
// the reply is post-filtered by substring match against the known set;
// call failure, empty output, or an unrecognized answer all fall back
// to Misc.
type ModelClassifier struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

// NewModelClassifier builds a model-backed classifier.
func NewModelClassifier(client llm.Client, model string, logger *slog.Logger) *ModelClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelClassifier{
		client: client,
		model:  model,
		logger: logger.With("component", "categorize"),
	}
}

// Classify implements Classifier.
func (m *ModelClassifier) Classify(ctx context.Context, label string) ledger.Category {
	if strings.TrimSpace(label) == "" {
		return ledger.CategoryMisc
	}

	names := make([]string, 0, len(ledger.Categories()))
	for _, c := range ledger.Categories() {
		names = append(names, string(c))
	}

	prompt := fmt.Sprintf(
		"Classify the expense %q into exactly one of these categories: %s. Reply with the category name only.",
		label, strings.Join(names, ", "),
	)

	resp, err := m.client.Chat(ctx, m.model, []llm.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		m.logger.Warn("classification call failed, using Misc", "label", label, "error", err)
		return ledger.CategoryMisc
	}

	if c, ok := ledger.ParseCategory(resp.Message.Content); ok {
		return c
	}

	m.logger.Debug("model reply matched no category", "label", label, "reply", resp.Message.Content)
	return ledger.CategoryMisc
}

// KeywordClassifier is the deterministic rule-backed strategy. It
// probes the label for known keywords and needs no network.
type KeywordClassifier struct{}

// keyword table, probed in order. First hit wins.
var keywordRules = []struct {
	category ledger.Category
	words    []string
}{
	{ledger.CategoryFood, []string{"coffee", "lunch", "dinner", "breakfast", "grocer", "restaurant", "pizza", "burger", "snack", "food", "meal", "cafe"}},
	{ledger.CategoryTransport, []string{"uber", "taxi", "bus", "train", "metro", "fuel", "gas", "petrol", "parking", "flight", "ticket"}},
	{ledger.CategoryTech, []string{"laptop", "phone", "keyboard", "monitor", "software", "cable", "charger", "headphone", "gadget"}},
	{ledger.CategoryUtilities, []string{"electric", "water", "internet", "rent", "heating", "utility", "bill", "phone plan"}},
	{ledger.CategoryEntertainment, []string{"netflix", "spotify", "cinema", "movie", "game", "concert", "book", "subscription"}},
	{ledger.CategoryHealth, []string{"pharmacy", "doctor", "gym", "dentist", "medicine", "vitamin", "therapy"}},
}

// Classify implements Classifier.
func (KeywordClassifier) Classify(_ context.Context, label string) ledger.Category {
	l := strings.ToLower(label)
	for _, rule := range keywordRules {
		for _, w := range rule.words {
			if strings.Contains(l, w) {
				return rule.category
			}
		}
	}
	return ledger.CategoryMisc
}
