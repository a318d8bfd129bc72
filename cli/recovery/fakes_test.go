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
	"fmt"
	"time"

	"github.com/juju/errors"

	"github.com/mongoose-os/nrf-recover/cli/probe"
)

// testFamily returns the nRF91 table with timings shrunk so polling
// loops run out in milliseconds.
func testFamily() *Family {
	fam := NRF91()
	fam.ErasePollInterval = time.Millisecond
	fam.EraseTimeout = 20 * time.Millisecond
	fam.PreResetDelay = 0
	fam.ResetSettleDelay = 0
	fam.DbgPollInterval = time.Millisecond
	fam.DbgEnableWindow = 20 * time.Millisecond
	fam.NVMCPollInterval = 0
	fam.NVMCReadyTimeout = 20 * time.Millisecond
	return fam
}

// fakeAPConn models the device side of the unlock sequence and records
// every register operation.
type fakeAPConn struct {
	fam *Family

	locked           bool
	idr              uint32
	eraseReadsToZero int  // ERASEALLSTATUS reads before it clears
	eraseStuck       bool // ERASEALLSTATUS never clears
	unlockAfterReset bool

	erasing   bool
	wasReset  bool
	ops       []string
	numWrites int
	closed    bool
}

func (c *fakeAPConn) csw() uint32 {
	v := uint32(0x23000000)
	if !c.locked {
		v |= 1 << c.fam.DbgStatusBit
	}
	return v
}

func (c *fakeAPConn) ReadAPReg(ap probe.APAddress, addr uint16) (uint32, error) {
	c.ops = append(c.ops, fmt.Sprintf("R %s 0x%02x", ap, addr))
	switch {
	case ap == c.fam.MemAP && addr == c.fam.RegCSW:
		return c.csw(), nil
	case ap == c.fam.CtrlAP && addr == c.fam.RegIDR:
		return c.idr, nil
	case ap == c.fam.CtrlAP && addr == c.fam.RegEraseAllStatus:
		if !c.erasing || c.eraseStuck {
			if c.erasing {
				return 1, nil
			}
			return 0, nil
		}
		if c.eraseReadsToZero > 0 {
			c.eraseReadsToZero--
			return 1, nil
		}
		return 0, nil
	}
	return 0, errors.Errorf("unexpected read: %s 0x%02x", ap, addr)
}

func (c *fakeAPConn) WriteAPReg(ap probe.APAddress, addr uint16, value uint32) error {
	c.ops = append(c.ops, fmt.Sprintf("W %s 0x%02x=0x%x", ap, addr, value))
	c.numWrites++
	switch {
	case ap == c.fam.CtrlAP && addr == c.fam.RegEraseAll:
		c.erasing = value == 1
		return nil
	case ap == c.fam.CtrlAP && addr == c.fam.RegReset:
		if value == 0 && c.wasReset {
			if c.unlockAfterReset {
				c.locked = false
			}
		}
		c.wasReset = value == 1
		return nil
	}
	return errors.Errorf("unexpected write: %s 0x%02x", ap, addr)
}

func (c *fakeAPConn) Close() error {
	c.closed = true
	return nil
}

// fakeCore is a word-addressed memory with an NVMC model in front of it.
type fakeCore struct {
	fam *Family

	mem        map[uint32]uint32
	readyDelay int // READY reads returning 0 before each command completes
	notReady   int

	ops       []string
	halted    bool
	wasReset  bool
	flashOpen bool
}

func newFakeCore(fam *Family) *fakeCore {
	return &fakeCore{fam: fam, mem: map[uint32]uint32{}}
}

func (c *fakeCore) word(addr uint32) uint32 {
	if v, ok := c.mem[addr]; ok {
		return v
	}
	return erasedWord
}

func (c *fakeCore) ReadWord32(addr uint32) (uint32, error) {
	if addr == c.fam.NVMCReady {
		c.ops = append(c.ops, "R READY")
		if c.notReady > 0 {
			c.notReady--
			return 0, nil
		}
		return 1, nil
	}
	c.ops = append(c.ops, fmt.Sprintf("R 0x%08x", addr))
	return c.word(addr), nil
}

func (c *fakeCore) WriteWord32(addr uint32, value uint32) error {
	if addr == c.fam.NVMCConfig {
		c.ops = append(c.ops, fmt.Sprintf("W CONFIG=0x%x", value))
		c.flashOpen = value == 1
		c.notReady = c.readyDelay
		return nil
	}
	c.ops = append(c.ops, fmt.Sprintf("W 0x%08x=0x%08x", addr, value))
	if !c.flashOpen {
		return errors.Errorf("NVM write @0x%08x with write mode disabled", addr)
	}
	// NOR semantics: bits only clear.
	c.mem[addr] = c.word(addr) & value
	c.notReady = c.readyDelay
	return nil
}

func (c *fakeCore) ReadMem32(addr uint32, words []uint32) error {
	for i := range words {
		words[i] = c.word(addr + uint32(i)*4)
	}
	c.ops = append(c.ops, fmt.Sprintf("RB 0x%08x+%d", addr, len(words)))
	return nil
}

func (c *fakeCore) WriteMem32(addr uint32, words []uint32) error {
	for i, w := range words {
		if err := c.WriteWord32(addr+uint32(i)*4, w); err != nil {
			return err
		}
	}
	return nil
}

func (c *fakeCore) Halt() error {
	c.halted = true
	c.ops = append(c.ops, "HALT")
	return nil
}

func (c *fakeCore) Reset() error {
	c.wasReset = true
	c.ops = append(c.ops, "RESET")
	return nil
}

// fakeProbe ties the fakes together for orchestrator tests.
type fakeProbe struct {
	conn       *fakeAPConn
	core       *fakeCore
	attachErr  error
	speedKHz   uint
	attached   bool
	rawAttach  int
	closed     bool
	sessClosed bool
}

func (p *fakeProbe) SetSpeed(khz uint) error { p.speedKHz = khz; return nil }

func (p *fakeProbe) AttachUnspecified() (probe.RawAPConn, error) {
	p.rawAttach++
	return p.conn, nil
}

func (p *fakeProbe) Attach(target string) (probe.Session, error) {
	if p.attachErr != nil {
		return nil, p.attachErr
	}
	if p.conn.locked {
		return nil, errors.Errorf("target %s is locked", target)
	}
	p.attached = true
	return &fakeSession{p: p}, nil
}

func (p *fakeProbe) Close() error { p.closed = true; return nil }

type fakeSession struct {
	p *fakeProbe
}

func (s *fakeSession) Core(index int) (probe.Core, error) {
	if index != 0 {
		return nil, errors.Errorf("no core %d", index)
	}
	return s.p.core, nil
}

func (s *fakeSession) Close() error { s.p.sessClosed = true; return nil }
