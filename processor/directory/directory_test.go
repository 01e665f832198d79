package directory_test

import (
	"context"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/recsync/directoryclient"
	liberr "github.com/nabbar/recsync/errors"
	"github.com/nabbar/recsync/processor/directory"
	"github.com/nabbar/recsync/txn"
)

type fakeClient struct {
	mu         sync.Mutex
	properties map[string]directoryclient.Property
	channels   map[string]directoryclient.Channel
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		properties: make(map[string]directoryclient.Property),
		channels:   make(map[string]directoryclient.Channel),
	}
}

func (f *fakeClient) GetAllProperties(context.Context) ([]directoryclient.Property, liberr.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]directoryclient.Property, 0, len(f.properties))
	for _, p := range f.properties {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeClient) SetProperty(_ context.Context, prop directoryclient.Property) liberr.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.properties[prop.Name] = prop
	return nil
}

func (f *fakeClient) SetChannels(_ context.Context, channels []directoryclient.Channel) liberr.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range channels {
		f.channels[ch.Name] = ch
	}
	return nil
}

func (f *fakeClient) UpdateProperty(_ context.Context, prop directoryclient.Property, channelNames []string) liberr.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range channelNames {
		ch, ok := f.channels[name]
		if !ok {
			continue
		}
		replaced := false
		for i, p := range ch.Properties {
			if p.Name == prop.Name {
				ch.Properties[i] = prop
				replaced = true
				break
			}
		}
		if !replaced {
			ch.Properties = append(ch.Properties, prop)
		}
		f.channels[name] = ch
	}
	return nil
}

func (f *fakeClient) FindByArgs(_ context.Context, args []directoryclient.FindArg) ([]directoryclient.Channel, liberr.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []directoryclient.Channel
	for _, ch := range f.channels {
		if matches(ch, args) {
			out = append(out, ch)
		}
	}
	return out, nil
}

func matches(ch directoryclient.Channel, args []directoryclient.FindArg) bool {
	for _, a := range args {
		switch a.Key {
		case "~size":
			continue
		case "~name":
			found := false
			for _, n := range strings.Split(a.Value, "|") {
				if n == ch.Name {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			found := false
			for _, p := range ch.Properties {
				if p.Name == a.Key && p.Value == a.Value {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func propValue(ch directoryclient.Channel, name string) (string, bool) {
	for _, p := range ch.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

var fixedTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var _ = Describe("Processor", func() {
	var (
		cli *fakeClient
		cfg directory.Config
		src txn.SourceAddress
	)

	BeforeEach(func() {
		cli = newFakeClient()
		cfg = directory.DefaultConfig()
		cfg.RecceiverID = "recv1"
		src = txn.SourceAddress{Host: "10.1.2.3", Port: 5075}
	})

	It("provisions the required properties on Start", func() {
		p := directory.New("cf", cli, cfg, func() time.Time { return fixedTime })
		Expect(p.Start(context.Background())).To(BeNil())

		_, ok := cli.properties["hostName"]
		Expect(ok).To(BeTrue())
		_, ok = cli.properties["recceiverID"]
		Expect(ok).To(BeTrue())
	})

	It("creates a new channel as Active for a new record", func() {
		p := directory.New("cf", cli, cfg, func() time.Time { return fixedTime })
		Expect(p.Start(context.Background())).To(BeNil())

		b := txn.NewBuilder(src.String(), src, true, true).
			SetClientInfo("HOSTNAME", "ioc-host").
			SetClientInfo("IOCNAME", "ioc1").
			AddRecord(1, "device:one", "ai")
		tr, err := b.Build()
		Expect(err).To(BeNil())

		Expect(p.Commit(context.Background(), tr)).To(BeNil())

		ch, ok := cli.channels["device:one"]
		Expect(ok).To(BeTrue())
		v, ok := propValue(ch, "pvStatus")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("Active"))
		v, _ = propValue(ch, "iocid")
		Expect(v).To(Equal(src.IocID()))
	})

	It("orphans a channel once its owning IOC disconnects with no other owner", func() {
		p := directory.New("cf", cli, cfg, func() time.Time { return fixedTime })
		Expect(p.Start(context.Background())).To(BeNil())

		b := txn.NewBuilder(src.String(), src, true, true).AddRecord(1, "device:two", "ai")
		tr, err := b.Build()
		Expect(err).To(BeNil())
		Expect(p.Commit(context.Background(), tr)).To(BeNil())

		b2 := txn.NewBuilder(src.String(), src, false, false)
		tr2, err := b2.Build()
		Expect(err).To(BeNil())
		Expect(p.Commit(context.Background(), tr2)).To(BeNil())

		ch, ok := cli.channels["device:two"]
		Expect(ok).To(BeTrue())
		v, _ := propValue(ch, "pvStatus")
		Expect(v).To(Equal("Inactive"))
	})

	It("runs clean on Stop when configured, marking active channels for this recceiverID Inactive", func() {
		cli.channels["stale:chan"] = directoryclient.Channel{
			Name: "stale:chan",
			Properties: []directoryclient.Property{
				{Name: "pvStatus", Value: "Active"},
				{Name: "recceiverID", Value: "recv1"},
			},
		}

		p := directory.New("cf", cli, cfg, func() time.Time { return fixedTime })
		Expect(p.Start(context.Background())).To(BeNil())
		Expect(p.Stop(context.Background())).To(BeNil())

		v, _ := propValue(cli.channels["stale:chan"], "pvStatus")
		Expect(v).To(Equal("Inactive"))
	})
})
