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

// Package db is a relational Processor, mirroring every committed
// Transaction into five normalized tables via gorm: the owning server,
// its client_info key/values, its records, each record's primary name
// and aliases, and each record's info key/values.
package db

// Server is one connected session, as seen by this recceiver instance
// (identified by Owner).
type Server struct {
	ID       uint   `gorm:"primaryKey"`
	Hostname string `gorm:"index:idx_server_host_port"`
	Port     uint16 `gorm:"index:idx_server_host_port"`
	Owner    uint32 `gorm:"index"`
}

// ServerInfo is one client_info key/value pair for a Server.
type ServerInfo struct {
	ID    uint `gorm:"primaryKey"`
	Host  uint `gorm:"index"`
	Key   string
	Value string
}

// Record is one live record of a Server.
type Record struct {
	PKey       uint   `gorm:"primaryKey;column:pkey"`
	Host       uint   `gorm:"index:idx_record_host_id"`
	RecID      uint32 `gorm:"column:id;index:idx_record_host_id"`
	RecordType string
}

func (Record) TableName() string { return "record" }

// RecordName is a record's primary name (Prim=true) or one of its
// aliases (Prim=false).
type RecordName struct {
	ID     uint `gorm:"primaryKey"`
	Rec    uint `gorm:"index"`
	Name   string
	Prim   bool
}

func (RecordName) TableName() string { return "record_name" }

// RecInfo is one info key/value pair attached to a record.
type RecInfo struct {
	ID    uint `gorm:"primaryKey"`
	Rec   uint `gorm:"index"`
	Key   string
	Value string
}

func (RecInfo) TableName() string { return "recinfo" }
