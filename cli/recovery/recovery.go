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
// Package recovery implements the unlock / reflash / re-protect sequence
// for debug-locked nRF91 devices.
package recovery

import (
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/nrf-recover/cli/ourutil"
	"github.com/mongoose-os/nrf-recover/cli/probe"
)

const probeRetryInterval = 100 * time.Millisecond

// RunOpts configures a recovery run. OpenProbe and FlashImage are the
// external capabilities (USB probe driver, image programmer); the CLI
// wires the real implementations, tests substitute fakes.
type RunOpts struct {
	ImagePath      string
	Selector       probe.Selector
	ConnectTimeout time.Duration
	Force          bool
	SpeedKHz       uint
	Family         *Family

	OpenProbe  func(probe.Selector) (probe.Probe, error)
	FlashImage func(sess probe.Session, fam *Family, imagePath string) error
}

// Run performs the end-to-end recovery: acquire probe, unlock, flash,
// write the protection words, reset. The first failing stage aborts the
// run; partial progress (e.g. erased but not reflashed) is not rolled
// back.
func Run(opts *RunOpts) error {
	fam := opts.Family
	if fam == nil {
		fam = NRF91()
	}

	if _, err := os.Stat(opts.ImagePath); err != nil {
		return errors.NotFoundf("image file %q", opts.ImagePath)
	}

	p, err := acquireProbe(opts)
	if err != nil {
		return errors.Trace(err)
	}
	defer p.Close()
	ourutil.Reportf("Got probe!")

	if opts.SpeedKHz > 0 {
		if err := p.SetSpeed(opts.SpeedKHz); err != nil {
			glog.Infof("Failed to set SWD speed: %s", err)
		}
	}

	if err := Unlock(p, fam, opts.Force); err != nil {
		return errors.Annotatef(err, "failed to unlock device")
	}

	sess, err := p.Attach(fam.TargetName)
	if err != nil {
		return errors.Annotatef(err, "failed to attach to %s", fam.TargetName)
	}
	defer sess.Close()
	ourutil.Reportf("Created session!")

	if err := opts.FlashImage(sess, fam, opts.ImagePath); err != nil {
		return errors.Annotatef(err, "failed to flash %s", opts.ImagePath)
	}
	ourutil.Reportf("Done flashing!")

	core, err := sess.Core(0)
	if err != nil {
		return errors.Trace(err)
	}
	for _, addr := range []uint32{fam.UICRApprotect, fam.UICRSecureApprotect} {
		if err := WriteUICR(core, fam, addr, fam.ProtectDisableValue); err != nil {
			return errors.Annotatef(err, "failed to write UICR @0x%08x", addr)
		}
	}

	if err := core.Reset(); err != nil {
		return errors.Annotatef(err, "failed to reset target")
	}
	ourutil.Reportf("Done!")
	return nil
}

// acquireProbe retries discovery until the deadline: recovery is often
// started before the probe is plugged in or enumerated.
func acquireProbe(opts *RunOpts) (probe.Probe, error) {
	deadline := time.Now().Add(opts.ConnectTimeout)
	for {
		p, err := opts.OpenProbe(opts.Selector)
		if err == nil {
			return p, nil
		}
		glog.V(1).Infof("Probe open: %s", err)
		if !time.Now().Before(deadline) {
			return nil, errors.Timeoutf("waiting %s for probe %s", opts.ConnectTimeout, opts.Selector)
		}
		time.Sleep(probeRetryInterval)
	}
}
