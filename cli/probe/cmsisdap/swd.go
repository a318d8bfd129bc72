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
	"encoding/binary"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/nrf-recover/cli/probe"
)

// DP register addresses.
const (
	dpRegDPIDR    = 0x00 // read
	dpRegAbort    = 0x00 // write
	dpRegCtrlStat = 0x04
	dpRegSelect   = 0x08 // write
	dpRegRDBUFF   = 0x0c // read
)

// DP ABORT bits: STKCMPCLR|STKERRCLR|WDERRCLR|ORUNERRCLR.
const dpAbortClearAll = 0x1e

// DP CTRL/STAT power request/ack bits.
const (
	ctrlStatPowerReq = 0x50000000 // CDBGPWRUPREQ | CSYSPWRUPREQ
	ctrlStatPowerAck = 0xa0000000 // CDBGPWRUPACK | CSYSPWRUPACK
)

// Common AP register addresses (ADIv5 MEM-AP layout).
const (
	apRegCSW = 0x00
	apRegTAR = 0x04
	apRegDRW = 0x0c
	apRegIDR = 0xfc
)

func ackString(ack byte) string {
	switch ack {
	case ackOK:
		return "OK"
	case ackWait:
		return "WAIT"
	case ackFault:
		return "FAULT"
	}
	return "NO-ACK"
}

// transfer performs a single DAP_Transfer. addr is the register's byte
// offset; only A[3:2] go on the wire, bank selection is the caller's job.
func (d *DAP) transfer(req byte, addr uint16, value uint32) (uint32, error) {
	buf := []byte{cmdTransfer, 0 /* DAP index */, 1, req | byte(addr&0x0c)}
	if req&reqRnW == 0 {
		var v [4]byte
		binary.LittleEndian.PutUint32(v[:], value)
		buf = append(buf, v[:]...)
	}
	resp, err := d.cmd(buf)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if len(resp) < 3 {
		return 0, errors.Errorf("short DAP_Transfer response")
	}
	if ack := resp[2] & 0x07; ack != ackOK {
		return 0, errors.Errorf("SWD transfer failed: ACK %s", ackString(ack))
	}
	if resp[2]&0x08 != 0 {
		return 0, errors.Errorf("SWD protocol error")
	}
	if req&reqRnW != 0 {
		if len(resp) < 7 {
			return 0, errors.Errorf("short DAP_Transfer read response")
		}
		return binary.LittleEndian.Uint32(resp[3:7]), nil
	}
	return 0, nil
}

func (d *DAP) dpRead(addr uint16) (uint32, error) {
	return d.transfer(reqRnW, addr, 0)
}

func (d *DAP) dpWrite(addr uint16, value uint32) error {
	_, err := d.transfer(0, addr, value)
	return errors.Trace(err)
}

// writeSelect programs DP SELECT for the given AP and register bank.
func (d *DAP) writeSelect(ap probe.APAddress, addr uint16) error {
	sel := uint32(ap.Index)<<24 | uint32(addr&0xf0)
	if d.dpSelectSet && sel == d.dpSelect {
		return nil
	}
	if err := d.dpWrite(dpRegSelect, sel); err != nil {
		return errors.Annotatef(err, "failed to write DP SELECT")
	}
	d.dpSelect = sel
	d.dpSelectSet = true
	return nil
}

func (d *DAP) apRead(ap probe.APAddress, addr uint16) (uint32, error) {
	if err := d.writeSelect(ap, addr); err != nil {
		return 0, errors.Trace(err)
	}
	v, err := d.transfer(reqAPnDP|reqRnW, addr, 0)
	if err != nil {
		return 0, errors.Annotatef(err, "%s read @0x%02x", ap, addr)
	}
	glog.V(2).Infof("%s[0x%02x] -> 0x%08x", ap, addr, v)
	return v, nil
}

func (d *DAP) apWrite(ap probe.APAddress, addr uint16, value uint32) error {
	if err := d.writeSelect(ap, addr); err != nil {
		return errors.Trace(err)
	}
	glog.V(2).Infof("%s[0x%02x] <- 0x%08x", ap, addr, value)
	if _, err := d.transfer(reqAPnDP, addr, value); err != nil {
		return errors.Annotatef(err, "%s write @0x%02x", ap, addr)
	}
	return nil
}

// initDP reads DPIDR, clears sticky errors and powers up the debug and
// system domains.
func (d *DAP) initDP() error {
	dpidr, err := d.dpRead(dpRegDPIDR)
	if err != nil {
		return errors.Annotatef(err, "failed to read DPIDR")
	}
	glog.V(1).Infof("DPIDR: 0x%08x", dpidr)
	if err := d.dpWrite(dpRegAbort, dpAbortClearAll); err != nil {
		return errors.Annotatef(err, "failed to clear sticky errors")
	}
	if err := d.dpWrite(dpRegSelect, 0); err != nil {
		return errors.Trace(err)
	}
	d.dpSelect = 0
	d.dpSelectSet = true
	if err := d.dpWrite(dpRegCtrlStat, ctrlStatPowerReq); err != nil {
		return errors.Annotatef(err, "failed to request debug power")
	}
	for i := 0; ; i++ {
		stat, err := d.dpRead(dpRegCtrlStat)
		if err != nil {
			return errors.Trace(err)
		}
		if stat&ctrlStatPowerAck == ctrlStatPowerAck {
			break
		}
		if i >= 100 {
			return errors.Errorf("debug power-up not acknowledged, CTRL/STAT 0x%08x", stat)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// transferBlock reads or writes up to blockMaxWords words of a single AP
// register (DRW with address auto-increment, in practice).
func (d *DAP) transferBlock(ap probe.APAddress, addr uint16, req byte, out []uint32, in []uint32) error {
	if err := d.writeSelect(ap, addr); err != nil {
		return errors.Trace(err)
	}
	n := len(out)
	if req&reqRnW != 0 {
		n = len(in)
	}
	buf := []byte{cmdTransferBlock, 0, byte(n), byte(n >> 8), req | reqAPnDP | byte(addr&0x0c)}
	for _, w := range out {
		var v [4]byte
		binary.LittleEndian.PutUint32(v[:], w)
		buf = append(buf, v[:]...)
	}
	resp, err := d.cmd(buf)
	if err != nil {
		return errors.Trace(err)
	}
	if len(resp) < 4 {
		return errors.Errorf("short DAP_TransferBlock response")
	}
	got := int(resp[1]) | int(resp[2])<<8
	if ack := resp[3] & 0x07; ack != ackOK {
		return errors.Errorf("SWD block transfer failed after %d words: ACK %s", got, ackString(ack))
	}
	if req&reqRnW != 0 {
		if got != n || len(resp) < 4+4*n {
			return errors.Errorf("SWD block read returned %d of %d words", got, n)
		}
		for i := range in {
			in[i] = binary.LittleEndian.Uint32(resp[4+4*i:])
		}
	} else if got != n {
		return errors.Errorf("SWD block write accepted %d of %d words", got, n)
	}
	return nil
}
