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
	"time"

	"github.com/juju/errors"
)

// pollUntil re-evaluates cond every interval until it returns true, it
// returns an error, or timeout elapses (errors.IsTimeout on the result).
// timeout <= 0 means poll forever.
func pollUntil(interval, timeout time.Duration, cond func() (bool, error)) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		done, err := cond()
		if err != nil {
			return errors.Trace(err)
		}
		if done {
			return nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return errors.Timeoutf("condition not met after %s", timeout)
		}
		time.Sleep(interval)
	}
}
