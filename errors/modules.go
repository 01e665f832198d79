/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

package errors

// Package code ranges for recsync. Every package that registers error
// codes via RegisterIdFctMessage starts its block at its Min* constant,
// mirroring the one-package-one-range convention this file has always
// followed; the set below is recsync's own component list rather than
// a general-purpose library's.
const (
	MinPkgWire      = 100
	MinPkgTxn       = 150
	MinPkgAnnounce  = 200
	MinPkgAdmission = 300
	MinPkgProtocol  = 400
	MinPkgSession   = 500
	MinPkgPipeline  = 600
	MinPkgProcShow  = 700
	MinPkgProcDB    = 800
	MinPkgProcDir   = 900
	MinPkgDirClient = 950
	MinPkgConfig    = 1000
	MinPkgService   = 1100
	MinPkgLogger    = 1200

	MinAvailable = 2000
)
