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
	"crypto/rand"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/finmesh-network/finmesh/internal/msgs"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"golang.org/x/crypto/sha3"
)

// Bytes32 is an opaque 32 byte identifier, serialized to the wire and the
// database as lower case hex with a 0x prefix.
type Bytes32 [32]byte

func ParseBytes32Ctx(ctx context.Context, s string) (Bytes32, error) {
	var b32 Bytes32
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return b32, i18n.NewError(ctx, msgs.MsgTypesInvalidHex, err)
	}
	if len(b) != 32 {
		return b32, i18n.NewError(ctx, msgs.MsgTypesInvalidHexLen, 32, len(b))
	}
	copy(b32[:], b)
	return b32, nil
}

func ParseBytes32(s string) (Bytes32, error) {
	return ParseBytes32Ctx(context.Background(), s)
}

func MustParseBytes32(s string) Bytes32 {
	b32, err := ParseBytes32(s)
	if err != nil {
		panic(err)
	}
	return b32
}

func NewBytes32FromSlice(b []byte) Bytes32 {
	var b32 Bytes32
	copy(b32[:], b)
	return b32
}

// Bytes32Keccak returns the keccak256 hash of the input, which is the
// standard derivation for all content hashes and correlation ids.
func Bytes32Keccak(b []byte) Bytes32 {
	var b32 Bytes32
	hash := sha3.NewLegacyKeccak256()
	hash.Write(b)
	copy(b32[:], hash.Sum(nil))
	return b32
}

// HashConcat derives an id deterministically from an ordered list of parts,
// with each part length-prefixed so distinct part lists cannot collide.
func HashConcat(parts ...[]byte) Bytes32 {
	hash := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		var lenBytes [4]byte
		l := len(p)
		lenBytes[0] = byte(l >> 24)
		lenBytes[1] = byte(l >> 16)
		lenBytes[2] = byte(l >> 8)
		lenBytes[3] = byte(l)
		hash.Write(lenBytes[:])
		hash.Write(p)
	}
	var b32 Bytes32
	copy(b32[:], hash.Sum(nil))
	return b32
}

func RandBytes32() Bytes32 {
	var b32 Bytes32
	_, _ = rand.Read(b32[:])
	return b32
}

func (id Bytes32) Bytes() []byte {
	return id[:]
}

func (id Bytes32) HexString() string {
	return hex.EncodeToString(id[:])
}

func (id Bytes32) HexString0xPrefix() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id Bytes32) String() string {
	return id.HexString0xPrefix()
}

func (id Bytes32) IsZero() bool {
	return id == Bytes32{}
}

func (id *Bytes32) Equals(other *Bytes32) bool {
	if id == nil {
		return other == nil
	}
	if other == nil {
		return false
	}
	return *id == *other
}

func (id Bytes32) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *Bytes32) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseBytes32(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// SQL valuer stores the 0x prefixed hex string
func (id Bytes32) Value() (driver.Value, error) {
	return id.String(), nil
}

func (id *Bytes32) Scan(src interface{}) error {
	switch s := src.(type) {
	case string:
		parsed, err := ParseBytes32(s)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	case []byte:
		if len(s) == 32 {
			copy(id[:], s)
			return nil
		}
		parsed, err := ParseBytes32(string(s))
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	case nil:
		*id = Bytes32{}
		return nil
	default:
		return i18n.NewError(context.Background(), msgs.MsgTypesScanFail, src, id)
	}
}
