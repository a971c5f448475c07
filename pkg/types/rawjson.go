// Copyright © 2026 FinMesh Network Contributors
//
// SPDX-License-Identifier: Apache-2.0
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

package types

import (
	"context"
	"database/sql/driver"

	"github.com/finmesh-network/finmesh/internal/msgs"
	"github.com/hyperledger/firefly-common/pkg/i18n"
)

// RawJSON holds a JSON document verbatim, for payloads whose structure is
// owned by message-type handlers rather than this module.
type RawJSON []byte

func (m RawJSON) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return m, nil
}

func (m *RawJSON) UnmarshalJSON(data []byte) error {
	if m == nil {
		return i18n.NewError(context.Background(), msgs.MsgTypesInvalidJSON)
	}
	*m = append((*m)[0:0], data...)
	return nil
}

func (m RawJSON) String() string {
	if m == nil {
		return ""
	}
	return string(m)
}

func (m RawJSON) IsNil() bool {
	return m == nil
}

func (m RawJSON) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return string(m), nil
}

func (m *RawJSON) Scan(src interface{}) error {
	switch s := src.(type) {
	case string:
		*m = RawJSON(s)
		return nil
	case []byte:
		*m = append((*m)[0:0], s...)
		return nil
	case nil:
		*m = nil
		return nil
	default:
		return i18n.NewError(context.Background(), msgs.MsgTypesScanFail, src, m)
	}
}
