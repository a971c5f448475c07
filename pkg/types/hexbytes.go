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
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/finmesh-network/finmesh/internal/msgs"
	"github.com/hyperledger/firefly-common/pkg/i18n"
)

// HexBytes is a variable length byte array, serialized as 0x prefixed hex
// in JSON and in the database.
type HexBytes []byte

func ParseHexBytes(ctx context.Context, s string) (HexBytes, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, i18n.NewError(ctx, msgs.MsgTypesInvalidHex, err)
	}
	return b, nil
}

func MustParseHexBytes(s string) HexBytes {
	b, err := ParseHexBytes(context.Background(), s)
	if err != nil {
		panic(err)
	}
	return b
}

func (hb HexBytes) String() string {
	return "0x" + hex.EncodeToString(hb)
}

func (hb HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hb.String())
}

func (hb *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseHexBytes(context.Background(), s)
	if err != nil {
		return err
	}
	*hb = parsed
	return nil
}

func (hb HexBytes) Value() (driver.Value, error) {
	return hb.String(), nil
}

func (hb *HexBytes) Scan(src interface{}) error {
	switch s := src.(type) {
	case string:
		parsed, err := ParseHexBytes(context.Background(), s)
		if err != nil {
			return err
		}
		*hb = parsed
		return nil
	case []byte:
		parsed, err := ParseHexBytes(context.Background(), string(s))
		if err != nil {
			return err
		}
		*hb = parsed
		return nil
	case nil:
		*hb = nil
		return nil
	default:
		return i18n.NewError(context.Background(), msgs.MsgTypesScanFail, src, hb)
	}
}
