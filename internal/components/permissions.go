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

package components

import "context"

// Permission tags. Every privileged operation names the single tag it
// requires; grants are per (identity, tag).
const (
	PermissionAdmin        = "admin"
	PermissionOperator     = "operator"
	PermissionEmergency    = "emergency"
	PermissionRouter       = "router"
	PermissionRelay        = "relay"
	PermissionProcessor    = "processor"
	PermissionSettlement   = "settlement"
	PermissionHandlerAdmin = "handler-admin"
)

func AllPermissionTags() []string {
	return []string{
		PermissionAdmin,
		PermissionOperator,
		PermissionEmergency,
		PermissionRouter,
		PermissionRelay,
		PermissionProcessor,
		PermissionSettlement,
		PermissionHandlerAdmin,
	}
}

type PermissionManager interface {
	ManagerLifecycle
	// Require returns a FM010300 error if the identity does not hold the tag.
	Require(ctx context.Context, identity, tag string) error
	Grant(ctx context.Context, caller, identity, tag string) error
	Revoke(ctx context.Context, caller, identity, tag string) error
	List(ctx context.Context, identity string) ([]string, error)
}
