package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wwfm/aggregate-cli/internal/model"
	"github.com/wwfm/aggregate-cli/pkg/anthropic"
)

const systemPrompt = `You generate synthetic training reports for a database of
personal-growth solutions. Each report describes one person's experience with a
solution for a goal. Respond with a JSON array only, no prose and no markdown
fences. Each element is an object whose keys are exactly the requested field
names. Vary the answers realistically across reports.`

// Options configures a Generator.
type Options struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	// RPS caps requests per second. Zero or negative means unlimited.
	RPS float64
	// MaxElapsed bounds retry time per request. Defaults to two minutes.
	MaxElapsed time.Duration
}

// Generator produces AI sample reports for a goal/solution pairing.
type Generator struct {
	client     anthropic.Client
	opts       Options
	limiter    *rate.Limiter
	maxElapsed time.Duration
}

// NewGenerator creates a Generator backed by the given Anthropic client.
func NewGenerator(client anthropic.Client, opts Options) *Generator {
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	maxElapsed := opts.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = 2 * time.Minute
	}
	return &Generator{
		client:     client,
		opts:       opts,
		limiter:    rate.NewLimiter(limit, 1),
		maxElapsed: maxElapsed,
	}
}

// Generate asks the model for count synthetic reports covering the tracked
// fields and returns them tagged as AI samples for the pairing.
func (g *Generator) Generate(ctx context.Context, pairing model.Pairing, fields map[string]string, count int) ([]model.Report, error) {
	if count <= 0 {
		return nil, eris.New("seed: count must be positive")
	}
	if len(fields) == 0 {
		return nil, eris.New("seed: no tracked fields")
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "seed: rate limit wait")
	}

	prompt := buildPrompt(pairing, fields, count)

	var raw []map[string]any
	op := func() error {
		resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       g.opts.Model,
			MaxTokens:   g.opts.MaxTokens,
			System:      systemPrompt,
			Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
			Temperature: &g.opts.Temperature,
		})
		if err != nil {
			return err
		}
		resp.Usage.LogCost(g.opts.Model, "seed")

		parsed, err := parseReports(resp.Text())
		if err != nil {
			zap.L().Warn("seed response did not parse, retrying", zap.Error(err))
			return err
		}
		raw = parsed
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = g.maxElapsed
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, eris.Wrapf(err, "seed: generate for %s/%s", pairing.GoalID, pairing.SolutionID)
	}

	reports := make([]model.Report, 0, len(raw))
	for _, obj := range raw {
		sf := make(map[string]any, len(fields))
		for name := range fields {
			if v, ok := obj[name]; ok {
				sf[name] = v
			}
		}
		if len(sf) == 0 {
			continue
		}
		reports = append(reports, model.Report{
			GoalID:         pairing.GoalID,
			SolutionID:     pairing.SolutionID,
			VariantID:      pairing.VariantID,
			Category:       pairing.Category,
			Source:         model.SourceAISample,
			SolutionFields: sf,
		})
	}
	if len(reports) == 0 {
		return nil, eris.New("seed: model returned no usable reports")
	}

	zap.L().Info("generated sample reports",
		zap.String("goal_id", pairing.GoalID),
		zap.String("solution_id", pairing.SolutionID),
		zap.Int("requested", count),
		zap.Int("returned", len(reports)),
	)
	return reports, nil
}

func buildPrompt(pairing model.Pairing, fields map[string]string, count int) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate %d reports for the solution %q applied to the goal %q.\n", count, pairing.SolutionID, pairing.GoalID)
	if pairing.VariantID != "" {
		fmt.Fprintf(&sb, "The solution variant is %q.\n", pairing.VariantID)
	}
	if pairing.Category != "" {
		fmt.Fprintf(&sb, "The solution category is %q.\n", pairing.Category)
	}
	sb.WriteString("Fields per report:\n")
	for _, name := range names {
		switch fields[name] {
		case "array":
			fmt.Fprintf(&sb, "- %s: array of strings\n", name)
		case "boolean":
			fmt.Fprintf(&sb, "- %s: true or false\n", name)
		default:
			fmt.Fprintf(&sb, "- %s: short string\n", name)
		}
	}
	return sb.String()
}

// parseReports extracts the JSON array from a model response, tolerating
// markdown fences and surrounding prose.
func parseReports(text string) ([]map[string]any, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, eris.New("seed: no JSON array in response")
	}

	var raw []map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, eris.Wrap(err, "seed: parse response")
	}
	return raw, nil
}
