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
	"os"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/nrf-recover/cli/ourutil"
	"github.com/mongoose-os/nrf-recover/cli/probe/cmsisdap"
)

// flashCmd programs an image into an already unlocked device without
// touching the protection configuration.
func flashCmd(imagePath string) error {
	if _, err := os.Stat(imagePath); err != nil {
		return errors.NotFoundf("image file %q", imagePath)
	}
	p, err := cmsisdap.Open(probeSelector())
	if err != nil {
		return errors.Annotatef(err, "failed to open probe %s", probeSelector())
	}
	defer p.Close()
	ourutil.Reportf("Got probe!")
	if err := p.SetSpeed(*speedKHz); err != nil {
		glog.Infof("Failed to set SWD speed: %s", err)
	}
	fam := family()
	sess, err := p.Attach(fam.TargetName)
	if err != nil {
		return errors.Annotatef(err, "failed to attach to %s", fam.TargetName)
	}
	defer sess.Close()
	ourutil.Reportf("Created session!")
	if err := flashImage(sess, fam, imagePath); err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("Done flashing!")
	core, err := sess.Core(0)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(core.Reset(), "failed to reset target")
}
