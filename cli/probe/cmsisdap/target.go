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
package cmsisdap

import (
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/nrf-recover/cli/probe"
)

// MEM-AP CSW fields.
const (
	cswSizeWord   = 0x00000002
	cswAddrIncOn  = 0x00000010
	cswSizeIncMsk = 0x00000037
)

// Auto-increment wraps at 1 KB; block transfers must not cross it.
const autoIncWindow = 0x400

// Max words per DAP_TransferBlock, limited by the 512-byte bulk packet.
const blockMaxWords = 64

// Cortex-M debug registers.
const (
	regDHCSR = 0xe000edf0
	regAIRCR = 0xe000ed0c

	dhcsrDbgKey  = 0xa05f0000
	dhcsrDebugEn = 0x00000001
	dhcsrHalt    = 0x00000002
	dhcsrSHalted = 0x00020000

	aircrVectKey     = 0x05fa0000
	aircrSysResetReq = 0x00000004
)

type session struct {
	d      *DAP
	target string
	memAP  probe.APAddress
}

func (s *session) Core(index int) (probe.Core, error) {
	if index != 0 {
		return nil, errors.Errorf("no core %d on %s", index, s.target)
	}
	return &core{d: s.d, ap: s.memAP}, nil
}

func (s *session) Close() error {
	return errors.Trace(s.d.disconnect())
}

type core struct {
	d   *DAP
	ap  probe.APAddress
	csw uint32
}

// setCSW programs word-sized accesses with or without auto-increment.
// The non-control CSW bits are preserved from the reset value.
func (c *core) setCSW(autoInc bool) error {
	if c.csw == 0 {
		v, err := c.d.apRead(c.ap, apRegCSW)
		if err != nil {
			return errors.Annotatef(err, "failed to read CSW")
		}
		c.csw = v &^ uint32(cswSizeIncMsk)
	}
	want := c.csw | cswSizeWord
	if autoInc {
		want |= cswAddrIncOn
	}
	return errors.Trace(c.d.apWrite(c.ap, apRegCSW, want))
}

func (c *core) ReadWord32(addr uint32) (uint32, error) {
	if err := c.setCSW(false); err != nil {
		return 0, errors.Trace(err)
	}
	if err := c.d.apWrite(c.ap, apRegTAR, addr); err != nil {
		return 0, errors.Trace(err)
	}
	v, err := c.d.apRead(c.ap, apRegDRW)
	return v, errors.Annotatef(err, "read @0x%08x", addr)
}

func (c *core) WriteWord32(addr uint32, value uint32) error {
	if err := c.setCSW(false); err != nil {
		return errors.Trace(err)
	}
	if err := c.d.apWrite(c.ap, apRegTAR, addr); err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(c.d.apWrite(c.ap, apRegDRW, value), "write @0x%08x", addr)
}

// chunk returns how many of n words can be transferred starting at addr
// without crossing the auto-increment window.
func chunk(addr uint32, n int) int {
	if n > blockMaxWords {
		n = blockMaxWords
	}
	if room := int(autoIncWindow-addr%autoIncWindow) / 4; n > room {
		n = room
	}
	return n
}

func (c *core) ReadMem32(addr uint32, words []uint32) error {
	if err := c.setCSW(true); err != nil {
		return errors.Trace(err)
	}
	for len(words) > 0 {
		n := chunk(addr, len(words))
		if err := c.d.apWrite(c.ap, apRegTAR, addr); err != nil {
			return errors.Trace(err)
		}
		if err := c.d.transferBlock(c.ap, apRegDRW, reqRnW, nil, words[:n]); err != nil {
			return errors.Annotatef(err, "block read @0x%08x", addr)
		}
		addr += uint32(n) * 4
		words = words[n:]
	}
	return nil
}

func (c *core) WriteMem32(addr uint32, words []uint32) error {
	if err := c.setCSW(true); err != nil {
		return errors.Trace(err)
	}
	for len(words) > 0 {
		n := chunk(addr, len(words))
		if err := c.d.apWrite(c.ap, apRegTAR, addr); err != nil {
			return errors.Trace(err)
		}
		if err := c.d.transferBlock(c.ap, apRegDRW, 0, words[:n], nil); err != nil {
			return errors.Annotatef(err, "block write @0x%08x", addr)
		}
		addr += uint32(n) * 4
		words = words[n:]
	}
	return nil
}

func (c *core) Halt() error {
	if err := c.WriteWord32(regDHCSR, dhcsrDbgKey|dhcsrDebugEn|dhcsrHalt); err != nil {
		return errors.Annotatef(err, "failed to halt core")
	}
	for i := 0; ; i++ {
		v, err := c.ReadWord32(regDHCSR)
		if err != nil {
			return errors.Trace(err)
		}
		if v&dhcsrSHalted != 0 {
			glog.V(1).Infof("Core halted, DHCSR 0x%08x", v)
			return nil
		}
		if i >= 100 {
			return errors.Errorf("core did not halt, DHCSR 0x%08x", v)
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *core) Reset() error {
	// Drop C_DEBUGEN first so the core runs after reset.
	if err := c.WriteWord32(regDHCSR, dhcsrDbgKey); err != nil {
		return errors.Trace(err)
	}
	if err := c.WriteWord32(regAIRCR, aircrVectKey|aircrSysResetReq); err != nil {
		// The reset may tear down the bus before the ACK comes back.
		glog.V(1).Infof("AIRCR write after reset request: %s", err)
	}
	return nil
}
