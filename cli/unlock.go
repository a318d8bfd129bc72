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
	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/nrf-recover/cli/ourutil"
	"github.com/mongoose-os/nrf-recover/cli/probe/cmsisdap"
	"github.com/mongoose-os/nrf-recover/cli/recovery"
)

// unlockCmd unlocks the device without reflashing it. The target is
// left erased and running nothing.
func unlockCmd(imagePath string) error {
	p, err := cmsisdap.Open(probeSelector())
	if err != nil {
		return errors.Annotatef(err, "failed to open probe %s", probeSelector())
	}
	defer p.Close()
	ourutil.Reportf("Got probe!")
	if err := p.SetSpeed(*speedKHz); err != nil {
		glog.Infof("Failed to set SWD speed: %s", err)
	}
	return errors.Trace(recovery.Unlock(p, family(), *force))
}
