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
// Package probe defines the debug probe and target session interfaces.
// Concrete drivers (cli/probe/cmsisdap) implement them; the recovery and
// flashing code only ever sees these interfaces.
package probe

import (
	"fmt"
)

// DPAddress selects a Debug Port. Only the default DP is supported, the
// type exists so that AP addresses are fully qualified.
type DPAddress uint8

const DefaultDP DPAddress = 0

// APAddress identifies an Access Port on a Debug Port.
type APAddress struct {
	DP    DPAddress
	Index uint8
}

// AP returns the address of an AP on the default DP.
func AP(index uint8) APAddress {
	return APAddress{DP: DefaultDP, Index: index}
}

func (a APAddress) String() string {
	return fmt.Sprintf("AP%d", a.Index)
}

// Selector describes which USB debug probe to open.
type Selector struct {
	VendorID  uint16
	ProductID uint16
	Serial    string
}

func (s Selector) String() string {
	if s.Serial != "" {
		return fmt.Sprintf("%04x:%04x/%s", s.VendorID, s.ProductID, s.Serial)
	}
	return fmt.Sprintf("%04x:%04x", s.VendorID, s.ProductID)
}

// Probe is an opened debug probe, not yet bound to a target.
type Probe interface {
	// SetSpeed sets the SWD clock, best effort.
	SetSpeed(khz uint) error
	// AttachUnspecified brings up the SWD link without selecting a named
	// target, for raw AP register access. The probe remains usable after
	// the returned connection is closed.
	AttachUnspecified() (RawAPConn, error)
	// Attach connects to a named target and returns a session.
	Attach(target string) (Session, error)
	Close() error
}

// RawAPConn provides raw 32-bit Access Port register access.
// Register addresses are byte offsets within the AP register bank.
type RawAPConn interface {
	ReadAPReg(ap APAddress, addr uint16) (uint32, error)
	WriteAPReg(ap APAddress, addr uint16, value uint32) error
	Close() error
}

// Session is an attached, addressable view of the target.
type Session interface {
	Core(index int) (Core, error)
	Close() error
}

// Core exposes one core's memory and run control.
type Core interface {
	ReadWord32(addr uint32) (uint32, error)
	WriteWord32(addr uint32, value uint32) error
	ReadMem32(addr uint32, words []uint32) error
	WriteMem32(addr uint32, words []uint32) error
	Halt() error
	Reset() error
}
