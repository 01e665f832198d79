package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	libcfg "github.com/nabbar/recsync/internal/config"
)

var _ = Describe("ResolveConfigPath", func() {
	var oldHome string
	var tmpHome string

	BeforeEach(func() {
		oldHome = os.Getenv("HOME")
		tmpHome, _ = os.MkdirTemp("", "recsync-home-*")
		_ = os.Setenv("HOME", tmpHome)
	})

	AfterEach(func() {
		_ = os.Setenv("HOME", oldHome)
		_ = os.RemoveAll(tmpHome)
	})

	It("prefers an explicit path that exists", func() {
		f := filepath.Join(tmpHome, "explicit.conf")
		Expect(os.WriteFile(f, []byte("[recceiver]\nprocs = show\n"), 0o644)).To(Succeed())

		Expect(libcfg.ResolveConfigPath(f)).To(Equal(f))
	})

	It("falls back to ~/.recceiver.conf when the explicit path is missing", func() {
		home := filepath.Join(tmpHome, ".recceiver.conf")
		Expect(os.WriteFile(home, []byte("[recceiver]\nprocs = show\n"), 0o644)).To(Succeed())

		Expect(libcfg.ResolveConfigPath(filepath.Join(tmpHome, "missing.conf"))).To(Equal(home))
	})

	It("returns empty when nothing in the chain exists", func() {
		Expect(libcfg.ResolveConfigPath(filepath.Join(tmpHome, "missing.conf"))).To(Equal(""))
	})
})

var _ = Describe("Load", func() {
	It("uses the inline show-only default when no file is found", func() {
		cfg, err := libcfg.Load(filepath.Join(os.TempDir(), "definitely-missing-recsync.conf"))
		Expect(err).To(BeNil())
		Expect(cfg.Recceiver.Procs).To(Equal([]string{"show"}))
		Expect(cfg.Recceiver.Bind).ToNot(BeEmpty())
	})

	It("parses every recognized recceiver and directory key from an ini file", func() {
		dir, _ := os.MkdirTemp("", "recsync-conf-*")
		defer os.RemoveAll(dir)

		content := `[recceiver]
procs = show,db,directory
bind = 0.0.0.0:5075
maxActive = 4
commitSizeLimit = 100
commitInterval = 3s
announceInterval = 10s
tcptimeout = 20s
addrlist = 10.0.0.255:5049,10.0.1.255:5049
loglevel = debug
logformat = json

[directory]
alias = true
recordType = true
recordDesc = true
iocConnectionInfo = true
environment_vars = EPICS_HOST_ARCH:hostArch,ENGINEER:engineer
infotags = unit location
cleanOnStart = false
cleanOnStop = false
username = cfuser
recceiverId = recv-test
findSizeLimit = 200
baseurl = http://cf.example.org/ChannelFinder

[db]
driver = postgres
dsn = postgres://localhost/recsync
owner = 7
`
		f := filepath.Join(dir, "recceiver.conf")
		Expect(os.WriteFile(f, []byte(content), 0o644)).To(Succeed())

		cfg, err := libcfg.Load(f)
		Expect(err).To(BeNil())

		Expect(cfg.Recceiver.Procs).To(Equal([]string{"show", "db", "directory"}))
		Expect(cfg.Recceiver.Bind).To(Equal("0.0.0.0:5075"))
		Expect(cfg.Recceiver.MaxActive).To(Equal(4))
		Expect(cfg.Recceiver.CommitSizeLimit).To(Equal(100))
		Expect(cfg.Recceiver.AddrList).To(Equal([]string{"10.0.0.255:5049", "10.0.1.255:5049"}))
		Expect(cfg.Recceiver.LogLevel).To(Equal("debug"))

		Expect(cfg.Directory.Alias).To(BeTrue())
		Expect(cfg.Directory.RecordType).To(BeTrue())
		Expect(cfg.Directory.EnvironmentVars).To(Equal(map[string]string{
			"EPICS_HOST_ARCH": "hostArch",
			"ENGINEER":        "engineer",
		}))
		Expect(cfg.Directory.InfoTags).To(Equal([]string{"unit", "location"}))
		Expect(cfg.Directory.CleanOnStart).To(BeFalse())
		Expect(cfg.Directory.RecceiverID).To(Equal("recv-test"))
		Expect(cfg.Directory.FindSizeLimit).To(Equal(200))

		Expect(cfg.DB.Driver).To(Equal("postgres"))
		Expect(cfg.DB.Owner).To(Equal(uint32(7)))
	})

	It("rejects an invalid bind address", func() {
		dir, _ := os.MkdirTemp("", "recsync-conf-*")
		defer os.RemoveAll(dir)

		f := filepath.Join(dir, "recceiver.conf")
		Expect(os.WriteFile(f, []byte("[recceiver]\nprocs = show\nbind = not-a-bind-address\n"), 0o644)).To(Succeed())

		_, err := libcfg.Load(f)
		Expect(err).ToNot(BeNil())
	})
})

type fakeComponent struct {
	name     string
	startErr error
	started  *bool
	stopped  *[]string
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	*f.started = true
	return nil
}

func (f *fakeComponent) Stop(ctx context.Context) error {
	*f.stopped = append(*f.stopped, f.name)
	return nil
}

var _ = Describe("Manager", func() {
	It("starts components in order and stops them in reverse", func() {
		var aStarted, bStarted bool
		var stopped []string

		a := &fakeComponent{name: "a", started: &aStarted, stopped: &stopped}
		b := &fakeComponent{name: "b", started: &bStarted, stopped: &stopped}

		m := libcfg.NewManager(a, b)
		Expect(m.Start(context.Background())).To(BeNil())
		Expect(aStarted).To(BeTrue())
		Expect(bStarted).To(BeTrue())

		m.Stop(context.Background())
		Expect(stopped).To(Equal([]string{"b", "a"}))
	})

	It("rolls back already-started components when one fails", func() {
		var aStarted, cStarted bool
		var stopped []string

		a := &fakeComponent{name: "a", started: &aStarted, stopped: &stopped}
		failing := &fakeComponent{name: "failing", startErr: errors.New("boom"), started: new(bool), stopped: &stopped}
		c := &fakeComponent{name: "c", started: &cStarted, stopped: &stopped}

		m := libcfg.NewManager(a, failing, c)
		err := m.Start(context.Background())
		Expect(err).ToNot(BeNil())
		Expect(cStarted).To(BeFalse())
		Expect(stopped).To(Equal([]string{"a"}))
	})
})
