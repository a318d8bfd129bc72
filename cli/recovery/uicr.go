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
	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/nrf-recover/cli/probe"
)

const erasedWord = 0xffffffff

// NVMC.CONFIG write-enable modes.
const (
	nvmcConfigReadOnly = 0
	nvmcConfigWriteEn  = 1
)

// WriteUICR writes one 32-bit word of protected configuration memory,
// following the NVMC write-enable / ready discipline.
//
// UICR bits can only go 1 -> 0 without a full erase, so the write is
// attempted only if the location is erased or value is a subset of the
// current bits. Otherwise errors.IsNotSupported reports the rejection
// and no register is touched.
func WriteUICR(core probe.Core, fam *Family, addr, value uint32) error {
	current, err := core.ReadWord32(addr)
	if err != nil {
		return errors.Annotatef(err, "failed to read UICR word @0x%08x", addr)
	}
	glog.V(1).Infof("UICR @0x%08x: 0x%08x -> 0x%08x", addr, current, value)
	if current&value != value && current != erasedWord {
		return errors.NotSupportedf(
			"setting UICR bits @0x%08x (0x%08x -> 0x%08x) without an erase is", addr, current, value)
	}

	if err := core.WriteWord32(fam.NVMCConfig, nvmcConfigWriteEn); err != nil {
		return errors.Annotatef(err, "failed to enable NVMC write mode")
	}
	if err := WaitNVMCReady(core, fam); err != nil {
		return errors.Trace(err)
	}
	if err := core.WriteWord32(addr, value); err != nil {
		return errors.Annotatef(err, "failed to write UICR word @0x%08x", addr)
	}
	if err := WaitNVMCReady(core, fam); err != nil {
		return errors.Trace(err)
	}
	if err := core.WriteWord32(fam.NVMCConfig, nvmcConfigReadOnly); err != nil {
		return errors.Annotatef(err, "failed to disable NVMC write mode")
	}
	return errors.Trace(WaitNVMCReady(core, fam))
}

// WaitNVMCReady polls NVMC.READY until the controller is ready to
// accept the next command, bounded by fam.NVMCReadyTimeout
// (0 = wait forever).
func WaitNVMCReady(core probe.Core, fam *Family) error {
	err := pollUntil(fam.NVMCPollInterval, fam.NVMCReadyTimeout, func() (bool, error) {
		ready, err := core.ReadWord32(fam.NVMCReady)
		return ready&1 == 1, errors.Trace(err)
	})
	return errors.Annotatef(err, "NVMC did not become ready")
}
