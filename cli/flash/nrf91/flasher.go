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
// Package nrf91 programs Intel HEX images into nRF91 flash through the
// NVMC, via an attached target session.
package nrf91

import (
	"encoding/binary"
	"io/ioutil"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/nrf-recover/cli/ourutil"
	"github.com/mongoose-os/nrf-recover/cli/probe"
	"github.com/mongoose-os/nrf-recover/cli/recovery"
	"github.com/mongoose-os/nrf-recover/common/hexfile"
)

// Image segments closer than this are merged and the gap programmed as
// erased bytes.
const maxGapSize = 256

type FlashOpts struct {
	// Preverify skips words that already hold the desired value.
	Preverify bool
	// Verify reads everything back after programming.
	Verify bool
}

// Flash parses the HEX image at imagePath and programs it. The target
// flash must be erased where the image differs from current contents
// (after a recovery mass erase it always is).
func Flash(sess probe.Session, fam *recovery.Family, imagePath string, opts *FlashOpts) error {
	data, err := ioutil.ReadFile(imagePath)
	if err != nil {
		return errors.Annotatef(err, "failed to read image")
	}
	im, err := hexfile.Parse(data, 0xff, maxGapSize)
	if err != nil {
		return errors.Annotatef(err, "failed to parse %s", imagePath)
	}
	if len(im.Segments) == 0 {
		return errors.Errorf("image %s contains no data", imagePath)
	}

	core, err := sess.Core(0)
	if err != nil {
		return errors.Trace(err)
	}
	if err := core.Halt(); err != nil {
		return errors.Annotatef(err, "failed to halt core for flashing")
	}

	for _, seg := range im.Segments {
		words := toWords(seg.Data)
		ourutil.Reportf("Writing %d bytes @ 0x%08x...", len(words)*4, seg.Addr)
		if err := programSegment(core, fam, seg.Addr, words, opts); err != nil {
			return errors.Annotatef(err, "segment @0x%08x", seg.Addr)
		}
	}

	if opts.Verify {
		for _, seg := range im.Segments {
			if err := verifySegment(core, seg.Addr, toWords(seg.Data)); err != nil {
				return errors.Trace(err)
			}
		}
		ourutil.Reportf("Verified OK")
	}
	return nil
}

func programSegment(core probe.Core, fam *recovery.Family, addr uint32, words []uint32, opts *FlashOpts) error {
	var current []uint32
	if opts.Preverify {
		current = make([]uint32, len(words))
		if err := core.ReadMem32(addr, current); err != nil {
			return errors.Annotatef(err, "preverify read failed")
		}
	}

	written := 0
	writing := false
	defer func() {
		if writing {
			core.WriteWord32(fam.NVMCConfig, 0)
		}
	}()
	for i, w := range words {
		if current != nil && current[i] == w {
			continue
		}
		if current != nil && current[i] != 0xffffffff && current[i]&w != w {
			return errors.Errorf("flash @0x%08x holds 0x%08x, cannot be programmed to 0x%08x without an erase",
				addr+uint32(i)*4, current[i], w)
		}
		if !writing {
			if err := core.WriteWord32(fam.NVMCConfig, 1); err != nil {
				return errors.Annotatef(err, "failed to enable NVMC write mode")
			}
			if err := recovery.WaitNVMCReady(core, fam); err != nil {
				return errors.Trace(err)
			}
			writing = true
		}
		if err := core.WriteWord32(addr+uint32(i)*4, w); err != nil {
			return errors.Annotatef(err, "write @0x%08x failed", addr+uint32(i)*4)
		}
		// The NVMC accepts one word at a time.
		if err := recovery.WaitNVMCReady(core, fam); err != nil {
			return errors.Trace(err)
		}
		written++
	}
	if writing {
		writing = false
		if err := core.WriteWord32(fam.NVMCConfig, 0); err != nil {
			return errors.Annotatef(err, "failed to disable NVMC write mode")
		}
		if err := recovery.WaitNVMCReady(core, fam); err != nil {
			return errors.Trace(err)
		}
	}
	glog.V(1).Infof("@0x%08x: %d of %d words written, %d skipped", addr, written, len(words), len(words)-written)
	return nil
}

func verifySegment(core probe.Core, addr uint32, words []uint32) error {
	got := make([]uint32, len(words))
	if err := core.ReadMem32(addr, got); err != nil {
		return errors.Annotatef(err, "verify read @0x%08x failed", addr)
	}
	for i := range words {
		if got[i] != words[i] {
			return errors.Errorf("verify failed @0x%08x: got 0x%08x, want 0x%08x",
				addr+uint32(i)*4, got[i], words[i])
		}
	}
	return nil
}

// toWords packs data into little-endian words, padding the tail with
// erased bytes.
func toWords(data []byte) []uint32 {
	words := make([]uint32, 0, (len(data)+3)/4)
	for len(data) >= 4 {
		words = append(words, binary.LittleEndian.Uint32(data))
		data = data[4:]
	}
	if len(data) > 0 {
		var tail [4]byte
		copy(tail[:], data)
		for i := len(data); i < 4; i++ {
			tail[i] = 0xff
		}
		words = append(words, binary.LittleEndian.Uint32(tail[:]))
	}
	return words
}
