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
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/nrf-recover/common/pflagenv"
	"github.com/mongoose-os/nrf-recover/version"
)

const envPrefix = "NRF_RECOVER_"

var (
	connectTimeout = flag.DurationP("timeout", "t", 2*time.Second,
		"How long to keep retrying until the debug probe appears")
	force = flag.BoolP("force", "f", false,
		"Run the erase-all unlock sequence even if the device appears unlocked")
	vendorID  = flag.Uint16("vid", 0x2e8a, "USB vendor ID of the debug probe")
	productID = flag.Uint16("pid", 0x000c, "USB product ID of the debug probe")
	serial    = flag.StringP("serial", "s", "", "Serial number of the debug probe")
	target    = flag.String("target", "", "Target chip name (default: the family default)")
	speedKHz  = flag.Uint("swd-speed-khz", 12000, "SWD clock speed, kHz")

	versionFlag = flag.Bool("version", false, "Print version and exit")
	helpFull    = flag.Bool("helpfull", false, "Show full help, including advanced flags")
)

var commands = []command{
	{"recover", recoverCmd, `Unlock, reflash and re-protect a device (destructive: erases everything)`, true},
	{"unlock", unlockCmd, `Unlock a debug-locked device (destructive: erases everything)`, false},
	{"flash", flashCmd, `Flash a hex image to an already unlocked device`, true},
	{"info", infoCmd, `Print probe and target identification`, false},
}

type command struct {
	name      string
	handler   handler
	short     string
	wantImage bool
}

type handler func(imagePath string) error

// findCommand resolves the positional arguments into a command and its
// image path. A bare image path (no command name) means recover.
func findCommand(args []string) (*command, string) {
	if len(args) == 0 {
		return nil, ""
	}
	for i := range commands {
		if commands[i].name == args[0] {
			imagePath := ""
			if len(args) > 1 {
				imagePath = args[1]
			}
			return &commands[i], imagePath
		}
	}
	for i := range commands {
		if commands[i].name == "recover" {
			return &commands[i], args[0]
		}
	}
	return nil, ""
}

func run() error {
	cmd, imagePath := findCommand(flag.Args())
	if cmd == nil {
		usage()
		return errors.Errorf("no command given")
	}
	if cmd.wantImage && imagePath == "" {
		return errors.Errorf("%s requires an image file argument", cmd.name)
	}
	return errors.Trace(cmd.handler(imagePath))
}

func main() {
	initFlags()
	flag.Parse()
	pflagenv.Parse(envPrefix)

	if *helpFull {
		unhideFlags()
		usage()
		return
	} else if *versionFlag {
		fmt.Printf("nrf-recover\nVersion: %s\nBuild ID: %s\n", version.Version, version.BuildId)
		return
	}

	if err := run(); err != nil {
		glog.Infof("Error: %+v", err)
		reportError("Error: %s", err)
		os.Exit(1)
	}
}
