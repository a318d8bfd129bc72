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
package main

import (
	"time"

	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	nrf91Flasher "github.com/mongoose-os/nrf-recover/cli/flash/nrf91"
	"github.com/mongoose-os/nrf-recover/cli/probe"
	"github.com/mongoose-os/nrf-recover/cli/probe/cmsisdap"
	"github.com/mongoose-os/nrf-recover/cli/recovery"
)

var (
	eraseTimeout     time.Duration
	dbgEnableWindow  time.Duration
	nvmcReadyTimeout time.Duration
	noPreverify      bool
	noVerify         bool
)

// Advanced protocol tuning. The defaults are empirical; these exist for
// odd silicon, not for everyday use.
func init() {
	flag.DurationVar(&eraseTimeout, "erase-timeout", 0,
		"Ceiling for mass-erase status polling (0 = family default)")
	flag.DurationVar(&dbgEnableWindow, "dbg-enable-window", 0,
		"How long to wait for DbgStatus after the post-erase reset (0 = family default)")
	flag.DurationVar(&nvmcReadyTimeout, "nvmc-ready-timeout", 0,
		"Ceiling for NVMC READY polling; the controller itself promises no bound "+
			"(0 = family default, negative = wait forever)")
	flag.BoolVar(&noPreverify, "no-preverify", false,
		"Do not skip flash words that already hold the image contents")
	flag.BoolVar(&noVerify, "no-verify", false,
		"Do not read the image back after flashing")
	hiddenFlags = append(hiddenFlags,
		"erase-timeout", "dbg-enable-window", "nvmc-ready-timeout", "no-preverify", "no-verify")
}

func probeSelector() probe.Selector {
	return probe.Selector{
		VendorID:  *vendorID,
		ProductID: *productID,
		Serial:    *serial,
	}
}

func family() *recovery.Family {
	fam := recovery.NRF91()
	if *target != "" {
		fam.TargetName = *target
	}
	if eraseTimeout > 0 {
		fam.EraseTimeout = eraseTimeout
	}
	if dbgEnableWindow > 0 {
		fam.DbgEnableWindow = dbgEnableWindow
	}
	if nvmcReadyTimeout != 0 {
		fam.NVMCReadyTimeout = nvmcReadyTimeout
		if nvmcReadyTimeout < 0 {
			fam.NVMCReadyTimeout = 0
		}
	}
	return fam
}

func flashImage(sess probe.Session, fam *recovery.Family, imagePath string) error {
	opts := &nrf91Flasher.FlashOpts{Preverify: !noPreverify, Verify: !noVerify}
	return errors.Trace(nrf91Flasher.Flash(sess, fam, imagePath, opts))
}

func recoverCmd(imagePath string) error {
	opts := &recovery.RunOpts{
		ImagePath:      imagePath,
		Selector:       probeSelector(),
		ConnectTimeout: *connectTimeout,
		Force:          *force,
		SpeedKHz:       *speedKHz,
		Family:         family(),
		OpenProbe:      cmsisdap.Open,
		FlashImage:     flashImage,
	}
	return errors.Trace(recovery.Run(opts))
}
