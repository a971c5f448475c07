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

package main

import (
	"flag"
	"os"

	"github.com/finmesh-network/finmesh/pkg/finmesh"
)

func main() {
	configFile := flag.String("config", "finmesh.conf.yaml", "path to the node configuration file")
	runMode := flag.String("mode", finmesh.RunModeNode, "run mode")
	flag.Parse()
	os.Exit(int(finmesh.Run(*configFile, *runMode)))
}
