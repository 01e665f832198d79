package db_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nabbar/recsync/processor/db"
	"github.com/nabbar/recsync/txn"
)

func openTestDB() *gorm.DB {
	g, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	Expect(err).To(BeNil())
	return g
}

var _ = Describe("Processor", func() {
	It("inserts a server, its records, aliases and info on an initial transaction", func() {
		g := openTestDB()
		p := db.New("recdb", g, 1)
		Expect(p.Start(context.Background())).To(BeNil())

		b := txn.NewBuilder("10.0.0.2:5075", txn.SourceAddress{Host: "10.0.0.2", Port: 5075}, true, true).
			SetClientInfo("caVersion", "3.14.12").
			AddRecord(1, "device:one", "ai").
			AddAlias(1, "device:one:alias").
			SetRecordInfo(1, "units", "counts")
		tr, err := b.Build()
		Expect(err).To(BeNil())

		Expect(p.Commit(context.Background(), tr)).To(BeNil())

		var count int64
		Expect(g.Model(&db.Server{}).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(int64(1)))

		Expect(g.Model(&db.Record{}).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(int64(1)))

		Expect(g.Model(&db.RecordName{}).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(int64(2)))
	})

	It("removes the server row on a disconnect transaction", func() {
		g := openTestDB()
		p := db.New("recdb", g, 2)
		Expect(p.Start(context.Background())).To(BeNil())

		src := txn.SourceAddress{Host: "10.0.0.3", Port: 5075}
		b := txn.NewBuilder("10.0.0.3:5075", src, true, true).AddRecord(1, "device:two", "ai")
		tr, err := b.Build()
		Expect(err).To(BeNil())
		Expect(p.Commit(context.Background(), tr)).To(BeNil())

		b2 := txn.NewBuilder("10.0.0.3:5075", src, false, false)
		tr2, err := b2.Build()
		Expect(err).To(BeNil())
		Expect(p.Commit(context.Background(), tr2)).To(BeNil())

		var count int64
		Expect(g.Model(&db.Server{}).Where("owner = ?", 2).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(int64(0)))
	})
})
