package show_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/recsync/processor/show"
	"github.com/nabbar/recsync/txn"
)

var _ = Describe("Processor", func() {
	It("commits without error for a populated transaction", func() {
		p := show.New("show1")
		Expect(p.Start(context.Background())).To(BeNil())

		b := txn.NewBuilder("10.0.0.1:5075", txn.SourceAddress{Host: "10.0.0.1", Port: 5075}, true, true).
			SetClientInfo("caVersion", "3.14.12").
			AddRecord(1, "device:one", "ai").
			AddAlias(1, "device:one:alias").
			SetRecordInfo(1, "units", "counts")
		tr, err := b.Build()
		Expect(err).To(BeNil())

		Expect(p.Commit(context.Background(), tr)).To(BeNil())
		Expect(p.Stop(context.Background())).To(BeNil())
		Expect(p.Name()).To(Equal("show1"))
	})

	It("commits without error for a disconnect transaction", func() {
		p := show.New("show1")
		b := txn.NewBuilder("10.0.0.1:5075", txn.SourceAddress{Host: "10.0.0.1", Port: 5075}, false, false)
		tr, err := b.Build()
		Expect(err).To(BeNil())
		Expect(p.Commit(context.Background(), tr)).To(BeNil())
	})
})
