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
	"github.com/juju/errors"

	"github.com/mongoose-os/nrf-recover/cli/ourutil"
	"github.com/mongoose-os/nrf-recover/cli/probe/cmsisdap"
)

// infoCmd prints probe identification and the state of the target's
// access ports. Useful to tell a locked device from a wiring problem.
func infoCmd(imagePath string) error {
	p, err := cmsisdap.Open(probeSelector())
	if err != nil {
		return errors.Annotatef(err, "failed to open probe %s", probeSelector())
	}
	defer p.Close()

	if d, ok := p.(*cmsisdap.DAP); ok {
		for _, id := range []struct {
			name string
			id   byte
		}{
			{"Product", cmsisdap.InfoProduct},
			{"Serial", cmsisdap.InfoSerial},
			{"Firmware", cmsisdap.InfoFirmwareVersion},
		} {
			if v, err := d.Info(id.id); err == nil && v != "" {
				ourutil.Reportf("Probe %s: %s", id.name, v)
			}
		}
	}

	if err := p.SetSpeed(*speedKHz); err != nil {
		return errors.Trace(err)
	}
	conn, err := p.AttachUnspecified()
	if err != nil {
		return errors.Annotatef(err, "failed to attach")
	}
	defer conn.Close()

	fam := family()
	csw, err := conn.ReadAPReg(fam.MemAP, fam.RegCSW)
	if err != nil {
		return errors.Annotatef(err, "failed to read %s CSW", fam.MemAP)
	}
	ourutil.Reportf("%s CSW: 0x%08x, DbgStatus: %d", fam.MemAP, csw, (csw>>fam.DbgStatusBit)&1)
	idr, err := conn.ReadAPReg(fam.CtrlAP, fam.RegIDR)
	if err != nil {
		return errors.Annotatef(err, "failed to read CTRL-AP IDR")
	}
	ourutil.Reportf("CTRL-AP IDR: 0x%08x", idr)
	return nil
}
