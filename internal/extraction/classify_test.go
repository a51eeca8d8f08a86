package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = ginkgo.Describe("ParseLabel", func() {
	ginkgo.It("should accept each known label", func() {
		for _, l := range Labels {
			label, err := ParseLabel(string(l))
			Expect(err).NotTo(HaveOccurred())
			Expect(label).To(Equal(l))
		}
	})

	ginkgo.It("should trim surrounding whitespace", func() {
		Expect(ParseLabel("  paid\n")).To(Equal(LabelPaid))
	})

	ginkgo.It("should reject labels with different case", func() {
		_, err := ParseLabel("Total_Bill")
		Expect(errors.Is(err, ErrUnrecognizedLabel)).To(BeTrue())
	})

	ginkgo.It("should reject sentences containing a label", func() {
		label, err := ParseLabel("The label is due.")
		Expect(errors.Is(err, ErrUnrecognizedLabel)).To(BeTrue())
		Expect(label).To(Equal(LabelOther))
	})

	ginkgo.It("should reject labels wrapped in code fences", func() {
		for _, reply := range []string{"```total_bill```", "```\ntotal_bill\n```", "`paid`"} {
			label, err := ParseLabel(reply)
			Expect(errors.Is(err, ErrUnrecognizedLabel)).To(BeTrue(), reply)
			Expect(label).To(Equal(LabelOther))
		}
	})
})

var _ = ginkgo.Describe("ReduceLabel", func() {
	ginkgo.It("should keep valid labels", func() {
		Expect(ReduceLabel(LabelDiscount, nil)).To(Equal(LabelDiscount))
	})

	ginkgo.It("should default on error", func() {
		Expect(ReduceLabel(LabelPaid, errors.New("boom"))).To(Equal(LabelOther))
	})

	ginkgo.It("should default on unknown labels", func() {
		Expect(ReduceLabel(Label("subtotal"), nil)).To(Equal(LabelOther))
		Expect(ReduceLabel(Label(""), nil)).To(Equal(LabelOther))
	})
})

var _ = ginkgo.Describe("BuildPrompt", func() {
	ginkgo.It("should embed the context and number", func() {
		prompt := BuildPrompt(NumericToken{Number: "1200", Context: "T0ta1 Bi11"})
		Expect(prompt).To(ContainSubstring(`"T0ta1 Bi11"`))
		Expect(prompt).To(ContainSubstring("Amount: 1200"))
	})

	ginkgo.It("should list every label", func() {
		prompt := BuildPrompt(NumericToken{Number: "1"})
		for _, l := range Labels {
			Expect(prompt).To(ContainSubstring(string(l)))
		}
	})
})

var _ = ginkgo.Describe("Classifier", func() {
	var (
		gen        *fakeGenerator
		classifier *Classifier
		token      NumericToken
	)

	ginkgo.BeforeEach(func() {
		token = NumericToken{Number: "100", Context: "T0ta1"}
	})

	ginkgo.Describe("NewClassifier", func() {
		ginkgo.It("should require a generator", func() {
			_, err := NewClassifier(ClassifierConfig{})
			Expect(err).To(HaveOccurred())
		})

		ginkgo.It("should apply defaults", func() {
			c, err := NewClassifier(ClassifierConfig{Generator: replyWith("paid", nil)})
			Expect(err).NotTo(HaveOccurred())
			Expect(c.concurrency).To(Equal(1))
			Expect(c.timeout).To(Equal(defaultClassifyTimeout))
			Expect(c.limiter).To(BeNil())
		})
	})

	ginkgo.Describe("Classify", func() {
		var label Label

		ginkgo.JustBeforeEach(func() {
			classifier = newTestClassifier(gen)
			label = classifier.Classify(context.Background(), token)
		})

		ginkgo.When("the generator answers with a label", func() {
			ginkgo.BeforeEach(func() {
				gen = replyWith("total_bill", nil)
			})

			ginkgo.It("should return it", func() {
				Expect(label).To(Equal(LabelTotalBill))
			})

			ginkgo.It("should call the generator once", func() {
				Expect(gen.calls()).To(Equal(1))
			})
		})

		ginkgo.When("the generator fails", func() {
			ginkgo.BeforeEach(func() {
				gen = replyWith("", errors.New("401 unauthorized"))
			})

			ginkgo.It("should fall back to other_amount", func() {
				Expect(label).To(Equal(LabelOther))
			})

			ginkgo.It("should not retry by default", func() {
				Expect(gen.calls()).To(Equal(1))
			})
		})

		ginkgo.When("the generator answers with something else", func() {
			ginkgo.BeforeEach(func() {
				gen = replyWith("It looks like the grand total.", nil)
			})

			ginkgo.It("should fall back to other_amount", func() {
				Expect(label).To(Equal(LabelOther))
			})
		})
	})

	ginkgo.Describe("Classify with arbitrary replies", func() {
		ginkgo.It("should never produce a label outside the known set", func() {
			replies := []string{
				"", " ", "\n", "TOTAL_BILL", "total", "total_bill.", "'paid'", `"due"`,
				"discount!", "other", "other amount", "null", "{}", "```", "due\npaid",
				"```total_bill```", "```\npaid\n```",
				"💸", strings.Repeat("x", 4096), "total_bill total_bill", "\x00paid",
				"paid\t", "  discount  ",
			}
			for i := 0; i < 64; i++ {
				replies = append(replies, fmt.Sprintf("%x", i*7919))
			}

			for _, reply := range replies {
				for _, err := range []error{nil, errors.New("timeout")} {
					c := newTestClassifier(replyWith(reply, err))
					label := c.Classify(context.Background(), token)
					Expect(label.Valid()).To(BeTrue(), "reply %q produced %q", reply, label)
					if err != nil {
						Expect(label).To(Equal(LabelOther))
					}
				}
			}
		})
	})

	ginkgo.Describe("retries", func() {
		ginkgo.It("should retry failed calls when configured", func() {
			var attempts atomic.Int32
			gen = &fakeGenerator{reply: func(string) (string, error) {
				if attempts.Add(1) < 3 {
					return "", errors.New("unavailable")
				}
				return "due", nil
			}}
			c, err := NewClassifier(ClassifierConfig{Generator: gen, Retries: 2, RetryBackoff: time.Millisecond})
			Expect(err).NotTo(HaveOccurred())

			Expect(c.Classify(context.Background(), token)).To(Equal(LabelDue))
			Expect(gen.calls()).To(Equal(3))
		})

		ginkgo.It("should give up after the configured retries", func() {
			gen = replyWith("", errors.New("unavailable"))
			c, err := NewClassifier(ClassifierConfig{Generator: gen, Retries: 1, RetryBackoff: time.Millisecond})
			Expect(err).NotTo(HaveOccurred())

			Expect(c.Classify(context.Background(), token)).To(Equal(LabelOther))
			Expect(gen.calls()).To(Equal(2))
		})

		ginkgo.It("should not retry unrecognized replies", func() {
			gen = replyWith("maybe", nil)
			c, err := NewClassifier(ClassifierConfig{Generator: gen, Retries: 3, RetryBackoff: time.Millisecond})
			Expect(err).NotTo(HaveOccurred())

			Expect(c.Classify(context.Background(), token)).To(Equal(LabelOther))
			Expect(gen.calls()).To(Equal(1))
		})
	})

	ginkgo.Describe("timeouts", func() {
		ginkgo.It("should fall back when the generator exceeds the timeout", func() {
			slow := &blockingGenerator{}
			c, err := NewClassifier(ClassifierConfig{Generator: slow, Timeout: 10 * time.Millisecond})
			Expect(err).NotTo(HaveOccurred())

			Expect(c.Classify(context.Background(), token)).To(Equal(LabelOther))
		})
	})

	ginkgo.Describe("ClassifyAll", func() {
		var tokens []NumericToken

		ginkgo.BeforeEach(func() {
			tokens = []NumericToken{
				{Number: "5", Context: "slow"},
				{Number: "100", Context: "T0ta1"},
				{Number: "20", Context: "Disc0unt"},
				{Number: "80", Context: "Pa1d"},
			}
			gen = labelByContext(map[string]string{
				"T0ta1":    "total_bill",
				"Disc0unt": "discount",
				"Pa1d":     "paid",
			})
		})

		ginkgo.It("should return one label per token in order", func() {
			classifier = newTestClassifier(gen)
			labels := classifier.ClassifyAll(context.Background(), tokens)
			Expect(labels).To(Equal([]Label{LabelOther, LabelTotalBill, LabelDiscount, LabelPaid}))
		})

		ginkgo.It("should preserve order when calls run concurrently", func() {
			inner := gen.reply
			gen.reply = func(prompt string) (string, error) {
				// The first token finishes last
				if strings.Contains(prompt, `"slow"`) {
					time.Sleep(50 * time.Millisecond)
				}
				return inner(prompt)
			}
			c, err := NewClassifier(ClassifierConfig{Generator: gen, Concurrency: 4})
			Expect(err).NotTo(HaveOccurred())

			labels := c.ClassifyAll(context.Background(), tokens)
			Expect(labels).To(Equal([]Label{LabelOther, LabelTotalBill, LabelDiscount, LabelPaid}))
			Expect(gen.calls()).To(Equal(4))
		})

		ginkgo.It("should handle no tokens", func() {
			classifier = newTestClassifier(gen)
			Expect(classifier.ClassifyAll(context.Background(), nil)).To(BeEmpty())
		})
	})

	ginkgo.Describe("rate limiting", func() {
		ginkgo.It("should still classify every token", func() {
			gen = replyWith("paid", nil)
			c, err := NewClassifier(ClassifierConfig{Generator: gen, RateLimit: 1000})
			Expect(err).NotTo(HaveOccurred())
			Expect(c.limiter).NotTo(BeNil())

			labels := c.ClassifyAll(context.Background(), []NumericToken{{Number: "1"}, {Number: "2"}, {Number: "3"}})
			Expect(labels).To(Equal([]Label{LabelPaid, LabelPaid, LabelPaid}))
		})

		ginkgo.It("should fall back when the context is cancelled while waiting", func() {
			gen = replyWith("paid", nil)
			c, err := NewClassifier(ClassifierConfig{Generator: gen, RateLimit: 0.001})
			Expect(err).NotTo(HaveOccurred())

			// The first call consumes the only burst token
			Expect(c.Classify(context.Background(), token)).To(Equal(LabelPaid))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			Expect(c.Classify(ctx, token)).To(Equal(LabelOther))
			Expect(gen.calls()).To(Equal(1))
		})
	})
})

// blockingGenerator waits until its context is done
type blockingGenerator struct{}

func (b *blockingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (b *blockingGenerator) Close() error {
	return nil
}
