package discovery

import (
	"testing"
	"time"
)

func TestEncodeDecodeTXT(t *testing.T) {
	txt := EncodeTXT("alice-laptop", "0.1.0")

	props, err := DecodeTXT(txt)
	if err != nil {
		t.Fatalf("DecodeTXT() error = %v", err)
	}
	if props[TXTKeyHostname] != "alice-laptop" {
		t.Errorf("hostname = %q, want alice-laptop", props[TXTKeyHostname])
	}
	if props[TXTKeyVersion] != "0.1.0" {
		t.Errorf("version = %q, want 0.1.0", props[TXTKeyVersion])
	}
}

func TestDecodeTXT(t *testing.T) {
	tests := []struct {
		name    string
		txt     []string
		wantErr bool
	}{
		{"Valid", []string{"hostname=alice", "version=0.1.0"}, false},
		{"HostnameOnly", []string{"hostname=alice"}, false},
		{"MissingHostname", []string{"version=0.1.0"}, true},
		{"EmptyHostname", []string{"hostname="}, true},
		{"Empty", nil, true},
		{"Garbage", []string{"no-equals-sign", "hostname=alice"}, false},
		{"ValueWithEquals", []string{"hostname=alice", "extra=a=b"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props, err := DecodeTXT(tt.txt)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeTXT() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && props[TXTKeyHostname] == "" {
				t.Error("decoded props missing hostname")
			}
		})
	}

	t.Run("ValueWithEqualsKeepsRemainder", func(t *testing.T) {
		props, err := DecodeTXT([]string{"hostname=alice", "extra=a=b"})
		if err != nil {
			t.Fatal(err)
		}
		if props["extra"] != "a=b" {
			t.Errorf("extra = %q, want a=b", props["extra"])
		}
	})
}

func TestServiceEntryToPeer(t *testing.T) {
	entry := ServiceEntry{
		Instance: "Oreon Pickup on alice._oreon-pickup._tcp.local.",
		Host:     "alice.local.",
		Port:     50309,
		Text:     []string{"hostname=alice", "version=0.1.0"},
		Addrs:    []string{"192.168.1.7", "fe80::1"},
	}

	peer, err := entry.ToPeer()
	if err != nil {
		t.Fatalf("ToPeer() error = %v", err)
	}

	if peer.ServiceName != entry.Instance {
		t.Errorf("ServiceName = %q", peer.ServiceName)
	}
	if peer.Hostname != "alice" {
		t.Errorf("Hostname = %q, want alice", peer.Hostname)
	}
	if peer.PrimaryAddress() != "192.168.1.7" {
		t.Errorf("PrimaryAddress() = %q, want 192.168.1.7", peer.PrimaryAddress())
	}
	if peer.DeviceID() != "alice@192.168.1.7" {
		t.Errorf("DeviceID() = %q, want alice@192.168.1.7", peer.DeviceID())
	}
	if peer.Port != 50309 {
		t.Errorf("Port = %d, want 50309", peer.Port)
	}

	t.Run("UndecodableTXT", func(t *testing.T) {
		bad := entry
		bad.Text = []string{"version=0.1.0"}
		if _, err := bad.ToPeer(); err == nil {
			t.Error("ToPeer() with missing hostname succeeded, want error")
		}
	})
}

func TestPeerNoAddresses(t *testing.T) {
	p := Peer{Hostname: "alice"}
	if p.PrimaryAddress() != "" {
		t.Errorf("PrimaryAddress() = %q, want empty", p.PrimaryAddress())
	}
	if p.DeviceID() != "alice@" {
		t.Errorf("DeviceID() = %q", p.DeviceID())
	}
}

func TestDedupeByDeviceID(t *testing.T) {
	now := time.Now()

	// Two advertisements from the same device under different service names:
	// the re-advertisement (fresher LastSeen) must win.
	peers := map[string]Peer{
		"old-name": {
			ServiceName: "old-name",
			Hostname:    "alice",
			Addresses:   []string{"192.168.1.7"},
			Port:        50309,
			LastSeen:    now.Add(-time.Minute),
		},
		"new-name": {
			ServiceName: "new-name",
			Hostname:    "alice",
			Addresses:   []string{"192.168.1.7"},
			Port:        50310,
			LastSeen:    now,
		},
		"other": {
			ServiceName: "other",
			Hostname:    "bob",
			Addresses:   []string{"192.168.1.9"},
			Port:        50309,
			LastSeen:    now,
		},
	}

	deduped := DedupeByDeviceID(peers)

	if len(deduped) != 2 {
		t.Fatalf("deduped set has %d entries, want 2", len(deduped))
	}

	alice, ok := deduped["alice@192.168.1.7"]
	if !ok {
		t.Fatal("alice@192.168.1.7 missing from deduped set")
	}
	if alice.ServiceName != "new-name" {
		t.Errorf("kept entry %q, want the most recently seen (new-name)", alice.ServiceName)
	}
	if _, ok := deduped["bob@192.168.1.9"]; !ok {
		t.Error("bob@192.168.1.9 missing from deduped set")
	}
}

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses([]string{"192.168.1.7", "fe80::1"}, []string{"10.0.0.3", "192.168.1.7"})

	want := []string{"192.168.1.7", "fe80::1", "10.0.0.3"}
	if len(got) != len(want) {
		t.Fatalf("merged = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("merged[%d] = %q, want %q (primary must stay stable)", i, got[i], want[i])
		}
	}
}
