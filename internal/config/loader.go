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

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	liberr "github.com/nabbar/recsync/errors"
)

const (
	systemConfigPath = "/etc/recceiver.conf"
	userConfigName   = ".recceiver.conf"
)

// ResolveConfigPath implements the fallback chain: an explicit --config
// path wins when it exists; otherwise /etc/recceiver.conf, then
// ~/.recceiver.conf; an empty return means "use the inline default".
func ResolveConfigPath(flagPath string) string {
	if flagPath != "" {
		if _, err := os.Stat(flagPath); err == nil {
			return flagPath
		}
	}
	if _, err := os.Stat(systemConfigPath); err == nil {
		return systemConfigPath
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, userConfigName)
		if _, err = os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load resolves flagPath through the fallback chain, reads whichever
// ini file was found (or the inline default), and returns the
// validated Config.
func Load(flagPath string) (*Config, liberr.Error) {
	v := viper.New()
	v.SetConfigType("ini")

	if path := ResolveConfigPath(flagPath); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, ErrRead.Error(err)
		}
	} else {
		if err := v.ReadConfig(strings.NewReader(defaultInline)); err != nil {
			return nil, ErrRead.Error(err)
		}
	}

	cfg := &Config{
		Recceiver: Recceiver{
			AnnounceInterval: defaultAnnounceInterval,
			TCPTimeout:       defaultTCPTimeout,
			CommitInterval:   defaultCommitInterval,
			CommitSizeLimit:  defaultCommitSizeLimit,
			MaxActive:        defaultMaxActive,
			Bind:             defaultBind,
			AddrList:         []string{defaultBroadcastAddr},
			LogLevel:         defaultLogLevel,
			LogFormat:        defaultLogFormat,
			Procs:            []string{"show"},
		},
		Directory: Directory{
			Username:      "cfstore",
			CleanOnStart:  true,
			CleanOnStop:   true,
			FindSizeLimit: 0,
		},
		DB: DB{
			Driver: "sqlite",
			DSN:    "file::memory:?cache=shared",
			Owner:  1,
		},
	}

	if v.IsSet("recceiver.announceinterval") {
		cfg.Recceiver.AnnounceInterval = v.GetDuration("recceiver.announceinterval")
	}
	if v.IsSet("recceiver.tcptimeout") {
		cfg.Recceiver.TCPTimeout = v.GetDuration("recceiver.tcptimeout")
	}
	if v.IsSet("recceiver.commitinterval") {
		cfg.Recceiver.CommitInterval = v.GetDuration("recceiver.commitinterval")
	}
	if v.IsSet("recceiver.commitsizelimit") {
		cfg.Recceiver.CommitSizeLimit = v.GetInt("recceiver.commitsizelimit")
	}
	if v.IsSet("recceiver.maxactive") {
		cfg.Recceiver.MaxActive = v.GetInt("recceiver.maxactive")
	}
	if v.IsSet("recceiver.bind") {
		cfg.Recceiver.Bind = v.GetString("recceiver.bind")
	}
	if v.IsSet("recceiver.addrlist") {
		cfg.Recceiver.AddrList = splitCSV(v.GetString("recceiver.addrlist"))
	}
	if v.IsSet("recceiver.loglevel") {
		cfg.Recceiver.LogLevel = v.GetString("recceiver.loglevel")
	}
	if v.IsSet("recceiver.logformat") {
		cfg.Recceiver.LogFormat = v.GetString("recceiver.logformat")
	}
	if v.IsSet("recceiver.procs") {
		cfg.Recceiver.Procs = splitCSV(v.GetString("recceiver.procs"))
	}
	if len(cfg.Recceiver.Procs) == 0 {
		return nil, ErrInvalidProcessor.Error(nil)
	}

	if v.IsSet("directory.alias") {
		cfg.Directory.Alias = v.GetBool("directory.alias")
	}
	if v.IsSet("directory.recordtype") {
		cfg.Directory.RecordType = v.GetBool("directory.recordtype")
	}
	if v.IsSet("directory.recorddesc") {
		cfg.Directory.RecordDesc = v.GetBool("directory.recorddesc")
	}
	if v.IsSet("directory.iocconnectioninfo") {
		cfg.Directory.IOCConnectionInfo = v.GetBool("directory.iocconnectioninfo")
	}
	if v.IsSet("directory.environment_vars") {
		cfg.Directory.EnvironmentVars = splitPairs(v.GetString("directory.environment_vars"))
	}
	if v.IsSet("directory.infotags") {
		cfg.Directory.InfoTags = strings.Fields(strings.ReplaceAll(v.GetString("directory.infotags"), ",", " "))
	}
	if v.IsSet("directory.cleanonstart") {
		cfg.Directory.CleanOnStart = v.GetBool("directory.cleanonstart")
	}
	if v.IsSet("directory.cleanonstop") {
		cfg.Directory.CleanOnStop = v.GetBool("directory.cleanonstop")
	}
	if v.IsSet("directory.username") {
		cfg.Directory.Username = v.GetString("directory.username")
	}
	if v.IsSet("directory.recceiverid") {
		cfg.Directory.RecceiverID = v.GetString("directory.recceiverid")
	}
	if v.IsSet("directory.timezone") {
		cfg.Directory.Timezone = v.GetString("directory.timezone")
	}
	if v.IsSet("directory.findsizelimit") {
		cfg.Directory.FindSizeLimit = v.GetInt("directory.findsizelimit")
	}
	if v.IsSet("directory.baseurl") {
		cfg.Directory.BaseURL = v.GetString("directory.baseurl")
	}

	if v.IsSet("db.driver") {
		cfg.DB.Driver = v.GetString("db.driver")
	}
	if v.IsSet("db.dsn") {
		cfg.DB.DSN = v.GetString("db.dsn")
	}
	if v.IsSet("db.owner") {
		cfg.DB.Owner = uint32(v.GetUint("db.owner"))
	}

	if _, _, err := splitHostPort(cfg.Recceiver.Bind); err != nil {
		return nil, ErrInvalidBind.Error(err)
	}

	return cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitPairs parses "EPICS_NAME:propName,OTHER:prop2" into a map.
func splitPairs(s string) map[string]string {
	out := make(map[string]string)
	for _, p := range splitCSV(s) {
		kv := strings.SplitN(p, ":", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out
}
