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

// Package config loads and validates recsyncd's ini-style configuration,
// and provides the small Component/Manager lifecycle wiring cmd/recsyncd
// sequences its components through.
package config

import "time"

// Recceiver is the top-level "[recceiver]" section: everything the
// acceptor, announcer and session batcher need, plus which processors
// to load.
type Recceiver struct {
	AnnounceInterval time.Duration
	TCPTimeout       time.Duration
	CommitInterval   time.Duration
	CommitSizeLimit  int
	MaxActive        int
	Bind             string
	AddrList         []string
	LogLevel         string
	LogFormat        string
	Procs            []string
}

// Directory is the "[directory]" section recognized keys. service maps
// them onto processor/directory.Config, except BaseURL, which goes to
// the directory client; Timezone is loaded into Config.Location.
type Directory struct {
	Alias             bool
	RecordType        bool
	RecordDesc        bool
	IOCConnectionInfo bool
	EnvironmentVars   map[string]string
	InfoTags          []string
	CleanOnStart      bool
	CleanOnStop       bool
	Username          string
	RecceiverID       string
	Timezone          string
	FindSizeLimit     int
	BaseURL           string
}

// DB is the "[db]" section: gorm driver selection and DSN.
type DB struct {
	Driver string
	DSN    string
	Owner  uint32
}

// Config is the fully parsed, validated configuration tree.
type Config struct {
	Recceiver Recceiver
	Directory Directory
	DB        DB
}

const (
	defaultAnnounceInterval = 15 * time.Second
	defaultTCPTimeout       = 40 * time.Second
	defaultCommitInterval   = 5 * time.Second
	defaultCommitSizeLimit  = 0
	defaultMaxActive        = 0
	defaultBind             = ":5075"
	defaultBroadcastAddr    = "<broadcast>:5049"
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
)

// defaultInline is the fallback configuration used when no file is
// found anywhere in the chain: a print-only setup, matching
// processors.py's own inline default of "procs=show".
const defaultInline = `[recceiver]
procs = show
`
