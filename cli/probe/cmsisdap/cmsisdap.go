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
// Package cmsisdap drives CMSIS-DAP v2 debug probes (bulk endpoints) and
// implements the probe.Probe family of interfaces on top of SWD.
package cmsisdap

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/nrf-recover/cli/probe"
)

// DAP command bytes.
const (
	cmdInfo              = 0x00
	cmdConnect           = 0x02
	cmdDisconnect        = 0x03
	cmdTransferConfigure = 0x04
	cmdTransfer          = 0x05
	cmdTransferBlock     = 0x06
	cmdSWJClock          = 0x11
	cmdSWJSequence       = 0x12
)

// DAP_Info IDs.
const (
	InfoProduct         = 0x02
	InfoSerial          = 0x03
	InfoFirmwareVersion = 0x04
)

const (
	connectSWD = 0x01

	dapOK = 0x00
)

// DAP_Transfer request bits.
const (
	reqAPnDP = 0x01
	reqRnW   = 0x02
)

// DAP_Transfer response ACK values (low 3 bits).
const (
	ackOK    = 0x01
	ackWait  = 0x02
	ackFault = 0x04
)

// transport is one command/response exchange with the probe.
// The USB implementation is in usb.go; tests substitute their own.
type transport interface {
	Exchange(req []byte) ([]byte, error)
	Close() error
}

// DAP is a CMSIS-DAP probe. It implements probe.Probe.
type DAP struct {
	t         transport
	sel       probe.Selector
	speedKHz  uint
	connected bool
	// Cached DP SELECT value, to avoid rewriting it for every AP access.
	dpSelect    uint32
	dpSelectSet bool
}

func newDAP(t transport, sel probe.Selector) *DAP {
	return &DAP{t: t, sel: sel, speedKHz: 1000}
}

func (d *DAP) String() string {
	return fmt.Sprintf("CMSIS-DAP %s", d.sel)
}

func (d *DAP) cmd(req []byte) ([]byte, error) {
	resp, err := d.t.Exchange(req)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(resp) == 0 || resp[0] != req[0] {
		return nil, errors.Errorf("DAP response to command 0x%02x is malformed", req[0])
	}
	return resp, nil
}

// cmdStatus runs a command whose response is a single status byte.
func (d *DAP) cmdStatus(req []byte) error {
	resp, err := d.cmd(req)
	if err != nil {
		return errors.Trace(err)
	}
	if len(resp) < 2 || resp[1] != dapOK {
		return errors.Errorf("DAP command 0x%02x failed", req[0])
	}
	return nil
}

// Info returns a DAP_Info string (product name, serial, FW version).
func (d *DAP) Info(id byte) (string, error) {
	resp, err := d.cmd([]byte{cmdInfo, id})
	if err != nil {
		return "", errors.Trace(err)
	}
	if len(resp) < 2 {
		return "", errors.Errorf("short DAP_Info response")
	}
	n := int(resp[1])
	if n > len(resp)-2 {
		n = len(resp) - 2
	}
	s := resp[2 : 2+n]
	// Info strings are NUL-terminated.
	for i, b := range s {
		if b == 0 {
			s = s[:i]
			break
		}
	}
	return string(s), nil
}

func (d *DAP) SetSpeed(khz uint) error {
	d.speedKHz = khz
	if !d.connected {
		// Applied on the next connect.
		return nil
	}
	return errors.Trace(d.setClock())
}

func (d *DAP) setClock() error {
	req := make([]byte, 5)
	req[0] = cmdSWJClock
	binary.LittleEndian.PutUint32(req[1:], uint32(d.speedKHz)*1000)
	return errors.Trace(d.cmdStatus(req))
}

// connect brings up the SWD link and leaves the DP powered up.
func (d *DAP) connect() error {
	if d.connected {
		return nil
	}
	resp, err := d.cmd([]byte{cmdConnect, connectSWD})
	if err != nil {
		return errors.Annotatef(err, "DAP_Connect failed")
	}
	if len(resp) < 2 || resp[1] != connectSWD {
		return errors.Errorf("probe refused SWD mode")
	}
	if err := d.setClock(); err != nil {
		return errors.Annotatef(err, "failed to set SWD clock")
	}
	// Idle cycles 0, WAIT retries 128, match retries 0.
	if err := d.cmdStatus([]byte{cmdTransferConfigure, 0, 0x80, 0x00, 0x00, 0x00}); err != nil {
		return errors.Annotatef(err, "DAP_TransferConfigure failed")
	}
	if err := d.swjSwitchToSWD(); err != nil {
		return errors.Annotatef(err, "SWJ sequence failed")
	}
	d.connected = true
	d.dpSelectSet = false
	if err := d.initDP(); err != nil {
		d.disconnect()
		return errors.Annotatef(err, "DP initialization failed")
	}
	return nil
}

func (d *DAP) disconnect() error {
	if !d.connected {
		return nil
	}
	d.connected = false
	d.dpSelectSet = false
	return errors.Trace(d.cmdStatus([]byte{cmdDisconnect}))
}

// swjSwitchToSWD sends line reset, the JTAG-to-SWD select sequence,
// another line reset and an idle period.
func (d *DAP) swjSwitchToSWD() error {
	seqs := [][]byte{
		// >50 clocks with SWDIO high.
		{56, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		// JTAG-to-SWD select, 0xe79e LSB first.
		{16, 0x9e, 0xe7},
		{56, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		// At least 2 idle clocks with SWDIO low.
		{8, 0x00},
	}
	for _, s := range seqs {
		req := append([]byte{cmdSWJSequence}, s...)
		if err := d.cmdStatus(req); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (d *DAP) Close() error {
	d.disconnect()
	return errors.Trace(d.t.Close())
}

func (d *DAP) AttachUnspecified() (probe.RawAPConn, error) {
	if err := d.connect(); err != nil {
		return nil, errors.Trace(err)
	}
	return &rawAPConn{d: d}, nil
}

func (d *DAP) Attach(target string) (probe.Session, error) {
	if err := d.connect(); err != nil {
		return nil, errors.Trace(err)
	}
	s := &session{d: d, target: target, memAP: probe.AP(0)}
	idr, err := d.apRead(s.memAP, apRegIDR)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to identify memory AP")
	}
	if idr == 0 {
		return nil, errors.Errorf("memory AP of %s is not present", target)
	}
	glog.V(1).Infof("Attached to %s, MEM-AP IDR 0x%08x", target, idr)
	return s, nil
}

type rawAPConn struct {
	d *DAP
}

func (c *rawAPConn) ReadAPReg(ap probe.APAddress, addr uint16) (uint32, error) {
	v, err := c.d.apRead(ap, addr)
	return v, errors.Trace(err)
}

func (c *rawAPConn) WriteAPReg(ap probe.APAddress, addr uint16, value uint32) error {
	return errors.Trace(c.d.apWrite(ap, addr, value))
}

// Close tears down the SWD link but keeps the probe handle usable.
func (c *rawAPConn) Close() error {
	return errors.Trace(c.d.disconnect())
}
