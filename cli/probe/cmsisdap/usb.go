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
	"github.com/golang/glog"
	"github.com/google/gousb"
	"github.com/juju/errors"

	"github.com/mongoose-os/nrf-recover/cli/probe"
)

const usbPacketSize = 512

// Open finds a CMSIS-DAP v2 probe matching the selector and returns it.
// If the serial number is empty, it is not checked. If multiple devices
// match the criteria, one of them will be returned.
func Open(sel probe.Selector) (probe.Probe, error) {
	uctx := gousb.NewContext()
	devs, err := uctx.OpenDevices(func(dd *gousb.DeviceDesc) bool {
		result := dd.Vendor == gousb.ID(sel.VendorID) && dd.Product == gousb.ID(sel.ProductID)
		glog.V(1).Infof("Dev %+v", dd)
		return result
	})
	// OpenDevices may fail overall but still return results. Only fail if
	// no devices were returned.
	if err != nil && len(devs) == 0 {
		uctx.Close()
		return nil, errors.Annotatef(err, "failed to enumerate USB devices")
	}
	var res *gousb.Device
	for _, dev := range devs {
		if res != nil {
			dev.Close()
			continue
		}
		sn, _ := dev.SerialNumber()
		glog.V(1).Infof("Dev %+v sn '%s'", dev, sn)
		if sel.Serial == "" || sn == sel.Serial {
			res = dev
		} else {
			dev.Close()
		}
	}
	if res == nil {
		uctx.Close()
		return nil, errors.NotFoundf("debug probe %s", sel)
	}
	t, err := newUSBTransport(uctx, res)
	if err != nil {
		res.Close()
		uctx.Close()
		return nil, errors.Annotatef(err, "probe %s is not a CMSIS-DAP v2 device", sel)
	}
	return newDAP(t, sel), nil
}

type usbTransport struct {
	uctx *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint
}

// newUSBTransport claims the probe's vendor-specific interface and its
// bulk endpoint pair (the CMSIS-DAP v2 transport).
func newUSBTransport(uctx *gousb.Context, dev *gousb.Device) (*usbTransport, error) {
	dev.SetAutoDetach(true)
	cfgDesc, ok := dev.Desc.Configs[1]
	if !ok {
		return nil, errors.Errorf("device has no configuration 1")
	}
	for _, ifd := range cfgDesc.Interfaces {
		for _, alt := range ifd.AltSettings {
			if alt.Class != gousb.ClassVendorSpec {
				continue
			}
			outNum, inNum := -1, -1
			for _, ep := range alt.Endpoints {
				if ep.TransferType != gousb.TransferTypeBulk {
					continue
				}
				if ep.Direction == gousb.EndpointDirectionOut && outNum < 0 {
					outNum = ep.Number
				}
				if ep.Direction == gousb.EndpointDirectionIn && inNum < 0 {
					inNum = ep.Number
				}
			}
			if outNum < 0 || inNum < 0 {
				continue
			}
			cfg, err := dev.Config(1)
			if err != nil {
				return nil, errors.Annotatef(err, "failed to select configuration")
			}
			intf, err := cfg.Interface(alt.Number, alt.Alternate)
			if err != nil {
				cfg.Close()
				return nil, errors.Annotatef(err, "failed to claim interface %d", alt.Number)
			}
			out, err := intf.OutEndpoint(outNum)
			if err == nil {
				var in *gousb.InEndpoint
				in, err = intf.InEndpoint(inNum)
				if err == nil {
					glog.V(1).Infof("Using interface %d, EP out %d, in %d", alt.Number, outNum, inNum)
					return &usbTransport{uctx: uctx, dev: dev, cfg: cfg, intf: intf, out: out, in: in}, nil
				}
			}
			intf.Close()
			cfg.Close()
			return nil, errors.Annotatef(err, "failed to open endpoints")
		}
	}
	return nil, errors.Errorf("no vendor-specific bulk interface found")
}

func (t *usbTransport) Exchange(req []byte) ([]byte, error) {
	if _, err := t.out.Write(req); err != nil {
		return nil, errors.Annotatef(err, "USB write failed")
	}
	buf := make([]byte, usbPacketSize)
	n, err := t.in.Read(buf)
	if err != nil {
		return nil, errors.Annotatef(err, "USB read failed")
	}
	return buf[:n], nil
}

func (t *usbTransport) Close() error {
	t.intf.Close()
	t.cfg.Close()
	t.dev.Close()
	return errors.Trace(t.uctx.Close())
}
