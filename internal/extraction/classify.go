package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zombor/amount-extractor/internal/scanning"
)

// ErrUnrecognizedLabel is returned when a generator reply is not one of the known labels
var ErrUnrecognizedLabel = errors.New("unrecognized classification label")

const (
	defaultClassifyTimeout = 30 * time.Second
	defaultRetryBackoff    = 250 * time.Millisecond
)

const classifyPrompt = `You are classifying a monetary amount found on a bill, receipt or invoice.

Words before the amount: "%s"
Amount: %s

Decide what the amount represents and answer with exactly one of these labels:
total_bill - the total amount of the bill
paid - an amount that has already been paid
due - an amount still owed or due
discount - a discount or deduction
other_amount - anything else (tax rates, quantities, item prices, dates)

Reply with the label only, with no punctuation or explanation.`

// ClassifierConfig configures the amount classifier
type ClassifierConfig struct {
	Generator scanning.Generator
	// Concurrency bounds parallel generator calls per request; 1 classifies sequentially
	Concurrency int
	// RateLimit caps generator calls per second across requests; 0 disables limiting
	RateLimit float64
	// Retries is the number of extra attempts after a failed generator call
	Retries uint64
	// Timeout bounds each generator call
	Timeout time.Duration
	// RetryBackoff is the base of the Fibonacci backoff between retries
	RetryBackoff time.Duration
}

// Classifier assigns a label to numeric tokens using a text generator
type Classifier struct {
	generator   scanning.Generator
	limiter     *rate.Limiter
	concurrency int
	retries     uint64
	timeout     time.Duration
	backoff     time.Duration
}

// NewClassifier creates a new Classifier
func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("classifier requires a generator")
	}
	c := &Classifier{
		generator:   cfg.Generator,
		concurrency: max(cfg.Concurrency, 1),
		retries:     cfg.Retries,
		timeout:     cfg.Timeout,
		backoff:     cfg.RetryBackoff,
	}
	if c.timeout <= 0 {
		c.timeout = defaultClassifyTimeout
	}
	if c.backoff <= 0 {
		c.backoff = defaultRetryBackoff
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), c.concurrency)
	}
	return c, nil
}

// BuildPrompt renders the classification prompt for a token
func BuildPrompt(token NumericToken) string {
	return fmt.Sprintf(classifyPrompt, token.Context, token.Number)
}

// ParseLabel maps a generator reply to a label. Only an exact match after trimming is accepted.
func ParseLabel(reply string) (Label, error) {
	label := Label(strings.TrimSpace(reply))
	if !label.Valid() {
		return LabelOther, fmt.Errorf("%w: %q", ErrUnrecognizedLabel, reply)
	}
	return label, nil
}

// ReduceLabel collapses a classification attempt into a label.
// Any error, or any label outside the known set, becomes LabelOther.
func ReduceLabel(label Label, err error) Label {
	if err != nil || !label.Valid() {
		return LabelOther
	}
	return label
}

// Classify labels a single token. Generator failures never escape; they reduce to LabelOther.
func (c *Classifier) Classify(ctx context.Context, token NumericToken) Label {
	label, err := c.classify(ctx, token)
	reduced := ReduceLabel(label, err)

	outcome := "ok"
	if err != nil {
		outcome = "fallback"
		slog.Warn("Classification fell back to default label",
			"number", token.Number,
			"context", token.Context,
			"label", reduced,
			"error", err,
		)
	}
	classificationsTotal.WithLabelValues(string(reduced), outcome).Inc()

	return reduced
}

// ClassifyAll labels every token, running up to the configured concurrency at once.
// labels[i] always belongs to tokens[i].
func (c *Classifier) ClassifyAll(ctx context.Context, tokens []NumericToken) []Label {
	labels := make([]Label, len(tokens))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, token := range tokens {
		g.Go(func() error {
			labels[i] = c.Classify(ctx, token)
			return nil
		})
	}
	_ = g.Wait()

	return labels
}

func (c *Classifier) classify(ctx context.Context, token NumericToken) (Label, error) {
	prompt := BuildPrompt(token)

	var reply string
	call := func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		start := time.Now()
		out, err := c.generator.Generate(callCtx, prompt)
		generatorDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("generating label: %w", err)
		}
		reply = out
		return nil
	}

	var err error
	if c.retries == 0 {
		err = call(ctx)
	} else {
		b := retry.WithMaxRetries(c.retries, retry.NewFibonacci(c.backoff))
		err = retry.Do(ctx, b, func(ctx context.Context) error {
			if err := call(ctx); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
	}
	if err != nil {
		return LabelOther, err
	}

	return ParseLabel(reply)
}
