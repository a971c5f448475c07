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

package componentmgr

import (
	"github.com/finmesh-network/finmesh/internal/formats"
	"github.com/finmesh-network/finmesh/internal/orchestrator"
	"github.com/finmesh-network/finmesh/internal/permissions"
	"github.com/finmesh-network/finmesh/internal/persistence"
	"github.com/finmesh-network/finmesh/internal/registrymgr"
	"github.com/finmesh-network/finmesh/internal/relay"
	"github.com/finmesh-network/finmesh/internal/router"
	"github.com/finmesh-network/finmesh/internal/rpcserver"
	"github.com/finmesh-network/finmesh/internal/settlement"
)

type Config struct {
	// NodeName is a human readable identifier used in logging only
	NodeName string `json:"nodeName"`
	// LocalNetwork is the sentinel network name for synchronous local delivery
	LocalNetwork string              `json:"localNetwork"`
	DB           persistence.Config  `json:"db"`
	RPCServer    rpcserver.Config    `json:"rpcServer"`
	Permissions  permissions.Config  `json:"permissions"`
	Targets      registrymgr.Config  `json:"targets"`
	Formats      formats.Config      `json:"formats"`
	Relay        relay.Config        `json:"relay"`
	Router       router.Config       `json:"router"`
	Settlement   settlement.Config   `json:"settlement"`
	Orchestrator orchestrator.Config `json:"orchestrator"`
}
