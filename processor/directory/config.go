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

package directory

import "time"

// Config carries the directory processor's per-instance settings.
type Config struct {
	AliasEnabled             bool
	RecordTypeEnabled        bool
	RecordDescriptionEnabled bool
	IOCConnectionInfo        bool
	EnvironmentVars          map[string]string
	InfoTagWhitelist         []string
	CleanOnStart             bool
	CleanOnStop              bool
	Username                 string
	RecceiverID              string
	Location                 *time.Location
	QueryLimit               int
	FindSizeLimit            int
}

const (
	propHostName    = "hostName"
	propIocName     = "iocName"
	propIocID       = "iocid"
	propIocIP       = "iocIP"
	propPvStatus    = "pvStatus"
	propTime        = "time"
	propRecceiverID = "recceiverID"
	propRecordType  = "recordType"
	propAlias       = "alias"
	propRecordDesc  = "recordDesc"

	statusActive   = "Active"
	statusInactive = "Inactive"

	caPortProp  = "caPort"
	pvaPortProp = "pvaPort"
	rsrvEnvVar  = "RSRV_SERVER_PORT"
	pvasEnvVar  = "PVAS_SERVER_PORT"

	findNameBudget    = 600
	defaultQueryChunk = 50
)

// DefaultConfig returns the inline-default directory configuration the
// corpus's print-processor-only fallback config never needs, but which
// exists here as a sane starting point for a standalone directory
// section.
func DefaultConfig() Config {
	return Config{
		Username:        "cfstore",
		Location:        time.UTC,
		QueryLimit:      defaultQueryChunk,
		CleanOnStart:    true,
		CleanOnStop:     true,
		EnvironmentVars: map[string]string{},
	}
}

// normalizedEnvVars folds the IOCConnectionInfo shortcut (RSRV/PVAS
// server ports) into the configured environment-variable mapping,
// matching cfstore.py's startService hookup of those two fixed names.
func (c Config) normalizedEnvVars() map[string]string {
	out := make(map[string]string, len(c.EnvironmentVars)+2)
	for k, v := range c.EnvironmentVars {
		out[k] = v
	}
	if c.IOCConnectionInfo {
		out[rsrvEnvVar] = caPortProp
		out[pvasEnvVar] = pvaPortProp
	}
	return out
}

// whitelist returns the info-tag whitelist as a set, including
// recordDesc when RecordDescriptionEnabled is set.
func (c Config) whitelist() map[string]struct{} {
	wl := make(map[string]struct{}, len(c.InfoTagWhitelist)+1)
	for _, t := range c.InfoTagWhitelist {
		wl[t] = struct{}{}
	}
	if c.RecordDescriptionEnabled {
		wl[propRecordDesc] = struct{}{}
	}
	return wl
}

// managedProperties is the set of property names this processor ever
// writes, used by the merge rule to discard stale managed properties
// that the latest reconciliation no longer supplies.
func (c Config) managedProperties() map[string]struct{} {
	m := map[string]struct{}{
		propHostName: {}, propIocName: {}, propIocID: {}, propIocIP: {},
		propPvStatus: {}, propTime: {}, propRecceiverID: {},
	}
	if c.RecordTypeEnabled {
		m[propRecordType] = struct{}{}
	}
	if c.AliasEnabled {
		m[propAlias] = struct{}{}
	}
	for t := range c.whitelist() {
		m[t] = struct{}{}
	}
	for _, p := range c.normalizedEnvVars() {
		m[p] = struct{}{}
	}
	return m
}

func (c Config) chunkSize() int {
	if c.QueryLimit <= 0 {
		return defaultQueryChunk
	}
	return c.QueryLimit
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}
