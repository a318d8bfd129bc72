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
	goflag "flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/nrf-recover/version"
)

var (
	hiddenFlags = []string{
		// glog's flags are noise for most users.
		"alsologtostderr",
		"log_backtrace_at",
		"log_dir",
		"logbufsecs",
		"logtostderr",
		"stderrthreshold",
		"v",
		"vmodule",
	}
)

func initFlags() {
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	for _, f := range hiddenFlags {
		flag.CommandLine.MarkHidden(f)
	}
	flag.Usage = usage
}

func unhideFlags() {
	for _, name := range hiddenFlags {
		if f := flag.Lookup(name); f != nil {
			f.Hidden = false
		}
	}
}

func reportError(f string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, f+"\n", args...)
}

func usage() {
	w := tabwriter.NewWriter(os.Stderr, 0, 0, 1, ' ', 0)

	fmt.Fprintf(w, "nrf-recover %s: nRF91 device recovery tool.\n", version.GetVersion())
	fmt.Fprintf(w, "\nUsage:\n")
	fmt.Fprintf(w, "  %s <command> [image.hex] [flags]\n", os.Args[0])
	fmt.Fprintf(w, "  %s <image.hex> [flags]\t(shorthand for: recover <image.hex>)\n", os.Args[0])
	fmt.Fprintf(w, "\nCommands:\n")
	for _, c := range commands {
		name := c.name
		if c.wantImage {
			name += " <image.hex>"
		}
		fmt.Fprintf(w, "  %s\t%s\n", name, c.short)
	}
	fmt.Fprintf(w, "\nFlags:\n")
	fmt.Fprintf(w, flag.CommandLine.FlagUsages())
	w.Flush()
}
