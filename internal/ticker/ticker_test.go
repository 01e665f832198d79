package ticker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/recsync/internal/ticker"
)

var _ = Describe("Ticker lifecycle", func() {
	It("fires immediately on Start, then periodically", func() {
		var n atomic.Int32
		tk := ticker.New(10*time.Millisecond, func(ctx context.Context, t *time.Ticker) error {
			n.Add(1)
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		Expect(tk.Start(ctx)).To(Succeed())
		Eventually(func() int32 { return n.Load() }, "1500ms", "5ms").Should(BeNumerically(">=", 3))
		Expect(tk.IsRunning()).To(BeTrue())
		Expect(tk.Stop(context.Background())).To(Succeed())
		Expect(tk.IsRunning()).To(BeFalse())
	})

	It("substitutes a default duration for zero, negative or too-small values", func() {
		tk := ticker.New(0, nil)
		Expect(tk).ToNot(BeNil())

		tk2 := ticker.New(-1*time.Second, nil)
		Expect(tk2).ToNot(BeNil())
	})

	It("collects errors from the tick function without stopping", func() {
		testErr := errors.New("boom")
		var n atomic.Int32

		tk := ticker.New(10*time.Millisecond, func(ctx context.Context, t *time.Ticker) error {
			n.Add(1)
			return testErr
		})

		Expect(tk.Start(context.Background())).To(Succeed())
		Eventually(func() int32 { return n.Load() }, "1500ms", "5ms").Should(BeNumerically(">=", 2))
		Expect(tk.Stop(context.Background())).To(Succeed())

		Expect(tk.ErrorsLast()).To(MatchError(testErr))
		Expect(len(tk.ErrorsList())).To(BeNumerically(">", 0))
	})

	It("clears errors on Restart", func() {
		tk := ticker.New(10*time.Millisecond, func(ctx context.Context, t *time.Ticker) error {
			return errors.New("x")
		})
		Expect(tk.Start(context.Background())).To(Succeed())
		time.Sleep(30 * time.Millisecond)
		Expect(tk.Stop(context.Background())).To(Succeed())
		Expect(tk.ErrorsLast()).ToNot(BeNil())

		Expect(tk.Restart(context.Background())).To(Succeed())
		time.Sleep(5 * time.Millisecond)
		Expect(tk.Stop(context.Background())).To(Succeed())
	})

	It("stops automatically when the parent context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		tk := ticker.New(10*time.Millisecond, nil)
		Expect(tk.Start(ctx)).To(Succeed())
		cancel()
		Eventually(func() bool { return tk.IsRunning() }, "200ms", "5ms").Should(BeFalse())
	})
})
