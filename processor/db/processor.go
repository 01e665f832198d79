/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package db

import (
	"context"
	"sync"

	"gorm.io/gorm"

	liblog "github.com/nabbar/recsync/internal/log"
	"github.com/nabbar/recsync/txn"
)

// Processor mirrors committed transactions into a relational database
// through gorm. One Owner id distinguishes rows created by this
// recceiver instance from rows another instance may have left in a
// shared database.
type Processor struct {
	name  string
	db    *gorm.DB
	owner uint32

	mu      sync.Mutex
	sources map[string]uint
}

// New opens no connection itself: db is expected to already be
// configured (dialect, pool limits) by the caller, matching the
// corpus's convention of constructing *gorm.DB once at the service
// layer and handing it to every consumer.
func New(name string, db *gorm.DB, owner uint32) *Processor {
	return &Processor{name: name, db: db, owner: owner, sources: make(map[string]uint)}
}

func (p *Processor) Name() string { return p.name }

// Start migrates the five tables this processor owns and deletes the
// server rows this owner left behind from a previous run. Rows in the
// other four tables that refer to those servers are not deleted.
func (p *Processor) Start(ctx context.Context) error {
	if err := p.db.WithContext(ctx).AutoMigrate(&Server{}, &ServerInfo{}, &Record{}, &RecordName{}, &RecInfo{}); err != nil {
		return ErrMigration.Error(err)
	}
	return p.cleanup(ctx)
}

func (p *Processor) Stop(ctx context.Context) error {
	return p.cleanup(ctx)
}

func (p *Processor) cleanup(ctx context.Context) error {
	liblog.InfoLevel.Logf("record-store processor %q cleaning up owner %d", p.name, p.owner)
	return p.db.WithContext(ctx).Where("owner = ?", p.owner).Delete(&Server{}).Error
}

// Commit runs the whole reconciliation for one transaction inside a
// single database transaction, matching the corpus's
// runInteraction-per-commit shape.
func (p *Processor) Commit(ctx context.Context, t txn.Transaction) error {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		srvid, err := p.resolveServer(tx, t)
		if err != nil {
			return err
		}

		if !t.Connected() {
			if err := tx.Where("id = ? AND owner = ?", srvid, p.owner).Delete(&Server{}).Error; err != nil {
				return err
			}
			p.mu.Lock()
			delete(p.sources, t.SrcID())
			p.mu.Unlock()
			return nil
		}

		if err := p.upsertClientInfos(tx, srvid, t); err != nil {
			return err
		}
		if err := p.replaceRecords(tx, srvid, t); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return ErrCommit.Error(err)
	}
	return nil
}

func (p *Processor) resolveServer(tx *gorm.DB, t txn.Transaction) (uint, error) {
	if !t.Initial() {
		p.mu.Lock()
		srvid, ok := p.sources[t.SrcID()]
		p.mu.Unlock()
		if !ok {
			return 0, ErrUnknownSource.Error(nil)
		}
		return srvid, nil
	}

	row := Server{Hostname: t.Source().Host, Port: t.Source().Port, Owner: p.owner}
	if err := tx.Create(&row).Error; err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.sources[t.SrcID()] = row.ID
	p.mu.Unlock()
	return row.ID, nil
}

func (p *Processor) upsertClientInfos(tx *gorm.DB, srvid uint, t txn.Transaction) error {
	infos := t.ClientInfos()
	if len(infos) == 0 {
		return nil
	}
	if err := tx.Where("host = ?", srvid).Delete(&ServerInfo{}).Error; err != nil {
		return err
	}
	rows := make([]ServerInfo, 0, len(infos))
	for k, v := range infos {
		rows = append(rows, ServerInfo{Host: srvid, Key: k, Value: v})
	}
	return tx.Create(&rows).Error
}

// replaceRecords deletes every record touched by this transaction
// (whether re-added or deleted, matching the corpus's "remove then
// re-create" shape) and re-inserts the ones in recordsToAdd along with
// their primary name, aliases and info rows.
func (p *Processor) replaceRecords(tx *gorm.DB, srvid uint, t txn.Transaction) error {
	toAdd := t.RecordsToAdd()
	toDelete := t.RecordsToDelete()

	touched := make([]uint32, 0, len(toAdd)+len(toDelete))
	for id := range toAdd {
		touched = append(touched, uint32(id))
	}
	for id := range toDelete {
		touched = append(touched, uint32(id))
	}

	if len(touched) > 0 {
		if err := tx.Where("host = ? AND id IN ?", srvid, touched).Delete(&Record{}).Error; err != nil {
			return err
		}
	}

	if len(toAdd) == 0 {
		return nil
	}

	aliases := t.Aliases()
	recInfos := t.RecordInfos()

	for id, meta := range toAdd {
		rec := Record{Host: srvid, RecID: uint32(id), RecordType: meta.Type}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}

		if err := tx.Create(&RecordName{Rec: rec.PKey, Name: meta.Name, Prim: true}).Error; err != nil {
			return err
		}

		for _, alias := range aliases[id] {
			if err := tx.Create(&RecordName{Rec: rec.PKey, Name: alias, Prim: false}).Error; err != nil {
				return err
			}
		}

		for k, v := range recInfos[id] {
			if err := tx.Create(&RecInfo{Rec: rec.PKey, Key: k, Value: v}).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
