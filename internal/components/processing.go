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

import (
	"context"

	"github.com/finmesh-network/finmesh/pkg/types"
	"gorm.io/gorm"
)

// MessageHandler executes the business logic for one message type. The
// returned JSON is recorded as the processing result, and may carry a
// settlement reference for the coordinator to pick up.
type MessageHandler func(ctx context.Context, msg *Message) (types.RawJSON, error)

// ProcessingResult is the at-most-once record of a processing attempt.
// Failures are recorded with Success=false rather than dropped, so a
// message is never processed twice even after a handler error.
type ProcessingResult struct {
	MessageID    types.Bytes32   `json:"messageId"`
	Success      bool            `json:"success"`
	Result       types.RawJSON   `json:"result,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	ProcessTime  types.Timestamp `json:"processTime"`
}

type Processor interface {
	ManagerLifecycle
	RegisterHandler(ctx context.Context, caller string, messageType string, handler MessageHandler) error
	DeregisterHandler(ctx context.Context, caller string, messageType string) error
	Process(ctx context.Context, dbTX *gorm.DB, msg *Message) (*ProcessingResult, error)
	// GetStatus returns the recorded result for a message, or an empty
	// result (Success=false, no error) if it has never been processed.
	GetStatus(ctx context.Context, messageID types.Bytes32) (*ProcessingResult, error)
}
