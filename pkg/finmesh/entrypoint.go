/*
 * Copyright © 2026 FinMesh Network Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
 * the License. You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
 * an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
 * specific language governing permissions and limitations under the License.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package finmesh

import "sync/atomic"

// one instance per process
var running atomic.Pointer[instance]

// Run blocks until the node is stopped by a signal or a call to Stop, and
// returns the process exit code. Starting a second instance while one is
// running is a programming error and panics.
func Run(configFile, runMode string) RC {
	i := newInstance(configFile, runMode)
	if !running.CompareAndSwap(nil, i) {
		panic("already running")
	}
	return i.run()
}

// Stop requests a clean shutdown of the running instance and waits for it.
func Stop() {
	i := running.Load()
	if i != nil {
		i.stop()
	}
}
