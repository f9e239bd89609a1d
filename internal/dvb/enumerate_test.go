package dvb

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnumerate(t *testing.T) {
	root := t.TempDir()
	mk := func(parts ...string) {
		p := filepath.Join(append([]string{root}, parts...)...)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	mk("adapter0", "frontend0")
	mk("adapter0", "dvr0")
	mk("adapter0", "demux0")
	mk("adapter1", "frontend0")
	mk("adapter1", "frontend1")
	mk("adapter1", "net0") // ignored
	mk("frontend9")        // no adapter parent, ignored

	// Test trees hold regular files, not char devices.
	old := isCharDevice
	isCharDevice = func(mode os.FileMode) bool { return mode.IsRegular() }
	defer func() { isCharDevice = old }()

	got, err := Enumerate(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("found %d frontends, want 3: %+v", len(got), got)
	}
	first := got[0]
	if first.Adapter != 0 || first.Frontend != 0 {
		t.Fatalf("first = %+v", first)
	}
	if first.DVR != filepath.Join(root, "adapter0", "dvr0") {
		t.Errorf("dvr path: %s", first.DVR)
	}
	if first.DMX != filepath.Join(root, "adapter0", "demux0") {
		t.Errorf("dmx path: %s", first.DMX)
	}
	last := got[2]
	if last.Adapter != 1 || last.Frontend != 1 {
		t.Fatalf("last = %+v", last)
	}
}

func TestEnumerateMissingRoot(t *testing.T) {
	got, err := Enumerate(filepath.Join(t.TempDir(), "no-dvb-here"))
	if err != nil {
		t.Fatalf("missing root should not error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("found %d", len(got))
	}
}
