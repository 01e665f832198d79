package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/recsync/pipeline"
	"github.com/nabbar/recsync/txn"
)

type fakeProcessor struct {
	name     string
	commits  int32
	delay    time.Duration
	fail     error
	started  int32
	stopped  int32
	mu       sync.Mutex
	received []txn.Transaction
}

func (f *fakeProcessor) Name() string { return f.name }

func (f *fakeProcessor) Start(ctx context.Context) error {
	atomic.AddInt32(&f.started, 1)
	return nil
}

func (f *fakeProcessor) Stop(ctx context.Context) error {
	atomic.AddInt32(&f.stopped, 1)
	return nil
}

func (f *fakeProcessor) Commit(ctx context.Context, t txn.Transaction) error {
	atomic.AddInt32(&f.commits, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.received = append(f.received, t)
	f.mu.Unlock()
	return f.fail
}

func buildTx(srcid string) txn.Transaction {
	b := txn.NewBuilder(srcid, txn.SourceAddress{Host: "10.0.0.1", Port: 5075}, true, true)
	b.AddRecord(1, "device:one", "ai")
	tr, _ := b.Build()
	return tr
}

var _ = Describe("Dispatcher", func() {
	It("delivers a transaction to every registered processor", func() {
		p1 := &fakeProcessor{name: "show"}
		p2 := &fakeProcessor{name: "db"}
		d := pipeline.New(0, p1, p2)

		err := d.Dispatch(context.Background(), buildTx("a"))
		Expect(err).To(BeNil())
		Expect(p1.commits).To(Equal(int32(1)))
		Expect(p2.commits).To(Equal(int32(1)))
	})

	It("removes a processor that fails with a non-cancellation error", func() {
		p1 := &fakeProcessor{name: "flaky", fail: errors.New("boom")}
		p2 := &fakeProcessor{name: "stable"}
		d := pipeline.New(0, p1, p2)

		err := d.Dispatch(context.Background(), buildTx("a"))
		Expect(err).ToNot(BeNil())
		Expect(d.Processors()).To(HaveLen(1))
		Expect(d.Processors()[0].Name()).To(Equal("stable"))

		err = d.Dispatch(context.Background(), buildTx("b"))
		Expect(err).To(BeNil())
		Expect(p1.commits).To(Equal(int32(1)))
		Expect(p2.commits).To(Equal(int32(2)))
	})

	It("keeps a processor that fails with context cancellation", func() {
		p1 := &fakeProcessor{name: "slow", delay: time.Second}
		d := pipeline.New(0, p1)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := d.Dispatch(ctx, buildTx("a"))
		Expect(err).ToNot(BeNil())
		Expect(d.Processors()).To(HaveLen(1))
	})

	It("starts and stops every processor", func() {
		p1 := &fakeProcessor{name: "one"}
		p2 := &fakeProcessor{name: "two"}
		d := pipeline.New(0, p1, p2)

		Expect(d.StartAll(context.Background())).To(BeNil())
		Expect(p1.started).To(Equal(int32(1)))
		Expect(p2.started).To(Equal(int32(1)))

		Expect(d.StopAll(context.Background())).To(BeNil())
		Expect(p1.stopped).To(Equal(int32(1)))
		Expect(p2.stopped).To(Equal(int32(1)))
	})

	It("returns no error for an empty processor set", func() {
		d := pipeline.New(0)
		Expect(d.Dispatch(context.Background(), buildTx("a"))).To(BeNil())
	})
})
