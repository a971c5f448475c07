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
	"context"
	"os"

	"github.com/finmesh-network/finmesh/internal/msgs"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"sigs.k8s.io/yaml"
)

// ReadAndParseYAMLFile loads a node configuration file. The config structs
// carry json tags, which sigs.k8s.io/yaml maps from YAML (or JSON - any
// JSON config file is equally valid YAML).
func ReadAndParseYAMLFile(ctx context.Context, filePath string, config *Config) error {
	b, err := os.ReadFile(filePath)
	if err != nil {
		return i18n.WrapError(ctx, err, msgs.MsgComponentMgrConfigFile, filePath)
	}
	if err := yaml.Unmarshal(b, config); err != nil {
		return i18n.WrapError(ctx, err, msgs.MsgComponentMgrConfigParse, filePath)
	}
	return nil
}
