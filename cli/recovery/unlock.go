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
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/nrf-recover/cli/ourutil"
	"github.com/mongoose-os/nrf-recover/cli/probe"
)

// Unlock brings a debug-locked device into a debuggable state through
// the CTRL-AP erase-all mechanism, or confirms it is already unlocked.
//
// This is destructive: unlocking erases all flash and RAM on the target.
// With force set the erase is performed even if the device looks
// unlocked. The probe remains usable for a normal attach afterwards.
func Unlock(p probe.Probe, fam *Family, force bool) error {
	conn, err := p.AttachUnspecified()
	if err != nil {
		return errors.Annotatef(err, "failed to attach for raw AP access")
	}
	defer conn.Close()
	return errors.Trace(unlock(conn, fam, force))
}

func unlock(conn probe.RawAPConn, fam *Family, force bool) error {
	csw, err := conn.ReadAPReg(fam.MemAP, fam.RegCSW)
	if err != nil {
		return errors.Annotatef(err, "failed to read %s CSW", fam.MemAP)
	}
	dbgStatus := (csw >> fam.DbgStatusBit) & 1
	glog.V(1).Infof("CSW: 0x%08x, DbgStatus: %d", csw, dbgStatus)
	if dbgStatus == 1 && !force {
		ourutil.Reportf("Device already unlocked!")
		return nil
	}

	// Sanity check: a CTRL-AP that does not identify itself means the AP
	// index is wrong for this part. Erasing through it would do nothing.
	idr, err := conn.ReadAPReg(fam.CtrlAP, fam.RegIDR)
	if err != nil {
		return errors.Annotatef(err, "failed to read CTRL-AP IDR")
	}
	glog.V(1).Infof("CTRL-AP IDR: 0x%08x", idr)
	if idr == 0 {
		return errors.NotValidf("CTRL-AP IDR 0x0 at %s", fam.CtrlAP)
	}

	if err := conn.WriteAPReg(fam.CtrlAP, fam.RegEraseAll, 1); err != nil {
		return errors.Annotatef(err, "failed to start ERASEALL")
	}
	ourutil.Reportf("Erasing all flash and RAM...")

	start := time.Now()
	err = pollUntil(fam.ErasePollInterval, fam.EraseTimeout, func() (bool, error) {
		status, err := conn.ReadAPReg(fam.CtrlAP, fam.RegEraseAllStatus)
		return status == 0, errors.Trace(err)
	})
	switch {
	case errors.IsTimeout(errors.Cause(err)):
		// Not fatal: erase status semantics vary between silicon
		// revisions, the reset + CSW check below is authoritative.
		ourutil.Reportf("Erase status did not clear within %s, proceeding anyway", fam.EraseTimeout)
	case err != nil:
		return errors.Annotatef(err, "failed to poll erase status")
	default:
		glog.V(1).Infof("Erase completed in %s", time.Since(start))
	}

	time.Sleep(fam.PreResetDelay)
	if err := conn.WriteAPReg(fam.CtrlAP, fam.RegReset, 1); err != nil {
		return errors.Annotatef(err, "failed to assert reset")
	}
	if err := conn.WriteAPReg(fam.CtrlAP, fam.RegReset, 0); err != nil {
		return errors.Annotatef(err, "failed to release reset")
	}
	time.Sleep(fam.ResetSettleDelay)
	glog.V(1).Infof("Issued soft reset")

	err = pollUntil(fam.DbgPollInterval, fam.DbgEnableWindow, func() (bool, error) {
		csw, err := conn.ReadAPReg(fam.MemAP, fam.RegCSW)
		if err != nil {
			return false, errors.Trace(err)
		}
		dbgStatus := (csw >> fam.DbgStatusBit) & 1
		glog.V(1).Infof("CSW: 0x%08x, DbgStatus: %d", csw, dbgStatus)
		return dbgStatus == 1, nil
	})
	if err != nil {
		if errors.IsTimeout(errors.Cause(err)) {
			return errors.Errorf("device did not unlock: DbgStatus stayed 0 for %s after reset", fam.DbgEnableWindow)
		}
		return errors.Annotatef(err, "failed to verify unlock")
	}

	ourutil.Reportf("Unlocked device!")
	return nil
}
