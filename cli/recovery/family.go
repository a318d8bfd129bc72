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

	"github.com/mongoose-os/nrf-recover/cli/probe"
)

// Family collects the per-target-family magic: AP indices, register
// addresses and the empirical timing windows of the recovery protocol.
// The state machine code never hard-codes any of these.
type Family struct {
	Name       string
	TargetName string

	// MemAP is the AHB-AP exposing target memory, CtrlAP the vendor
	// control AP with the erase-all mechanism. Do not confuse the two.
	MemAP  probe.APAddress
	CtrlAP probe.APAddress

	// MEM-AP CSW register and the bit signalling debug access.
	RegCSW       uint16
	DbgStatusBit uint

	// CTRL-AP registers.
	RegReset          uint16
	RegEraseAll       uint16
	RegEraseAllStatus uint16
	RegIDR            uint16

	// NVMC registers (absolute addresses in the target memory map).
	NVMCReady  uint32
	NVMCConfig uint32

	// UICR protection words and the value that locks protection off.
	UICRApprotect       uint32
	UICRSecureApprotect uint32
	ProtectDisableValue uint32

	PageSize uint32

	// Timing. The erase ceiling and the debug-enable window are
	// empirical values, configurable rather than derived.
	ErasePollInterval time.Duration
	EraseTimeout      time.Duration
	PreResetDelay     time.Duration
	ResetSettleDelay  time.Duration
	DbgPollInterval   time.Duration
	DbgEnableWindow   time.Duration
	NVMCPollInterval  time.Duration
	NVMCReadyTimeout  time.Duration
}

// NRF91 returns the constant table for the nRF91 family.
func NRF91() *Family {
	return &Family{
		Name:       "nRF91",
		TargetName: "nRF9151_xxAA",

		MemAP:  probe.AP(0),
		CtrlAP: probe.AP(4),

		RegCSW:       0x00,
		DbgStatusBit: 6,

		RegReset:          0x000,
		RegEraseAll:       0x004,
		RegEraseAllStatus: 0x008,
		RegIDR:            0x0fc,

		NVMCReady:  0x50039400,
		NVMCConfig: 0x50039504,

		UICRApprotect:       0x00ff8000,
		UICRSecureApprotect: 0x00ff802c,
		ProtectDisableValue: 0x50fa50fa,

		PageSize: 4096,

		ErasePollInterval: 500 * time.Millisecond,
		EraseTimeout:      15 * time.Second,
		PreResetDelay:     10 * time.Millisecond,
		ResetSettleDelay:  20 * time.Millisecond,
		DbgPollInterval:   100 * time.Millisecond,
		DbgEnableWindow:   1 * time.Second,
		NVMCPollInterval:  1 * time.Millisecond,
		NVMCReadyTimeout:  5 * time.Second,
	}
}
