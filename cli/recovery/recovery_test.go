//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package recovery

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"

	"github.com/mongoose-os/nrf-recover/cli/probe"
)

func testImage(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "recovery_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	fname := filepath.Join(dir, "app.hex")
	if err := ioutil.WriteFile(fname, []byte(":040000004F484149DB\n:00000001FF\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return fname
}

func testRunOpts(t *testing.T, p *fakeProbe) (*RunOpts, *int) {
	flashed := 0
	opts := &RunOpts{
		ImagePath:      testImage(t),
		Selector:       probe.Selector{VendorID: 0x2e8a, ProductID: 0x000c},
		ConnectTimeout: 50 * time.Millisecond,
		SpeedKHz:       12000,
		Family:         testFamily(),
		OpenProbe: func(probe.Selector) (probe.Probe, error) {
			return p, nil
		},
		FlashImage: func(sess probe.Session, fam *Family, imagePath string) error {
			flashed++
			return nil
		},
	}
	return opts, &flashed
}

func newTestProbe(fam *Family, locked bool) *fakeProbe {
	return &fakeProbe{
		conn: &fakeAPConn{fam: fam, locked: locked, idr: 0x12880000, unlockAfterReset: true},
		core: newFakeCore(fam),
	}
}

func TestRunHappyPath(t *testing.T) {
	fam := testFamily()
	p := newTestProbe(fam, true)
	opts, flashed := testRunOpts(t, p)
	opts.Family = fam

	if err := Run(opts); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if *flashed != 1 {
		t.Errorf("image flashed %d times, want 1", *flashed)
	}
	for _, addr := range []uint32{fam.UICRApprotect, fam.UICRSecureApprotect} {
		if got := p.core.word(addr); got != fam.ProtectDisableValue {
			t.Errorf("UICR @0x%08x: got 0x%08x, want 0x%08x", addr, got, fam.ProtectDisableValue)
		}
	}
	if !p.core.wasReset {
		t.Errorf("final core reset not performed")
	}
	if !p.closed || !p.sessClosed {
		t.Errorf("probe/session not released: probe=%v session=%v", p.closed, p.sessClosed)
	}
}

func TestRunMissingImage(t *testing.T) {
	fam := testFamily()
	p := newTestProbe(fam, true)
	opts, _ := testRunOpts(t, p)
	opts.ImagePath = "/does/not/exist.hex"
	opened := false
	opts.OpenProbe = func(probe.Selector) (probe.Probe, error) {
		opened = true
		return p, nil
	}

	err := Run(opts)
	if !errors.IsNotFound(errors.Cause(err)) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if opened {
		t.Errorf("probe discovery attempted with a missing image")
	}
}

func TestRunProbeTimeout(t *testing.T) {
	fam := testFamily()
	p := newTestProbe(fam, true)
	opts, _ := testRunOpts(t, p)
	opts.ConnectTimeout = 30 * time.Millisecond
	opts.OpenProbe = func(probe.Selector) (probe.Probe, error) {
		return nil, errors.Errorf("no such device")
	}

	start := time.Now()
	err := Run(opts)
	if !errors.IsTimeout(errors.Cause(err)) {
		t.Fatalf("expected Timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("gave up after %s, before the deadline", elapsed)
	}
	if p.rawAttach != 0 {
		t.Errorf("unlock attempted without a probe")
	}
}

func TestRunProbeAppearsLate(t *testing.T) {
	fam := testFamily()
	p := newTestProbe(fam, false)
	opts, _ := testRunOpts(t, p)
	opts.ConnectTimeout = time.Second
	attempts := 0
	opts.OpenProbe = func(probe.Selector) (probe.Probe, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.Errorf("no such device")
		}
		return p, nil
	}

	if err := Run(opts); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if attempts != 3 {
		t.Errorf("probe opened after %d attempts, want 3", attempts)
	}
}

func TestRunFlashFailureAborts(t *testing.T) {
	fam := testFamily()
	p := newTestProbe(fam, true)
	opts, _ := testRunOpts(t, p)
	opts.Family = fam
	opts.FlashImage = func(probe.Session, *Family, string) error {
		return errors.Errorf("flash blew up")
	}

	if err := Run(opts); err == nil {
		t.Fatal("expected an error")
	}
	if got := p.core.word(fam.UICRApprotect); got != erasedWord {
		t.Errorf("UICR written after failed flash: 0x%08x", got)
	}
	if p.core.wasReset {
		t.Errorf("core reset after failed flash")
	}
}
