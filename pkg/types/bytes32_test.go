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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytes32Static(t *testing.T) {

	var id1 Bytes32
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000000", id1.HexString0xPrefix())
	assert.Equal(t, "0000000000000000000000000000000000000000000000000000000000000000", id1.HexString())
	assert.True(t, id1.IsZero())

	ctx := context.Background()
	_, err := ParseBytes32Ctx(ctx, "0xfeedbeef")
	assert.Regexp(t, "FM010001.*32.*4", err)

	_, err = ParseBytes32Ctx(ctx, "wrong")
	assert.Regexp(t, "FM010000", err)

	assert.Panics(t, func() {
		MustParseBytes32("wrong")
	})

	id2 := MustParseBytes32("0x512d0e595c71863c47e803c565562f9284a48ee8984f4f9b55323eed72cf1414")
	assert.Equal(t, "0x512d0e595c71863c47e803c565562f9284a48ee8984f4f9b55323eed72cf1414", id2.String())
	assert.Equal(t, "512d0e595c71863c47e803c565562f9284a48ee8984f4f9b55323eed72cf1414", id2.HexString())

	id3 := NewBytes32FromSlice(id2.Bytes())
	assert.True(t, id2.Equals(&id3))
	assert.False(t, id2.Equals(nil))
	assert.True(t, (*Bytes32)(nil).Equals(nil))
	assert.False(t, (*Bytes32)(nil).Equals(&id2))

	id4 := MustParseBytes32("512d0e595c71863c47e803c565562f9284a48ee8984f4f9b55323eed72cf1414")
	assert.True(t, id2.Equals(&id4))

	assert.False(t, RandBytes32().IsZero())
}

func TestBytes32Keccak(t *testing.T) {

	id1 := Bytes32Keccak(([]byte)("hello world"))
	assert.Equal(t, "47173285a8d7341e5e972fc677286384f802f8ef42a5ec5f03bbfa254cb01fad", id1.HexString())

}

func TestHashConcat(t *testing.T) {

	id1 := HashConcat([]byte("ab"), []byte("c"))
	id2 := HashConcat([]byte("a"), []byte("bc"))
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, id1, HashConcat([]byte("ab"), []byte("c")))

}

func TestBytes32MarshalingJSON(t *testing.T) {

	type myStruct struct {
		ID1 *Bytes32 `json:"id1,omitempty"`
		ID2 Bytes32  `json:"id2"`
	}

	id := MustParseBytes32("0x512d0e595c71863c47e803c565562f9284a48ee8984f4f9b55323eed72cf1414")
	jsonBytes, err := json.Marshal(&myStruct{ID1: &id, ID2: id})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id1": "0x512d0e595c71863c47e803c565562f9284a48ee8984f4f9b55323eed72cf1414",
		"id2": "0x512d0e595c71863c47e803c565562f9284a48ee8984f4f9b55323eed72cf1414"
	}`, string(jsonBytes))

	var restored myStruct
	err = json.Unmarshal(jsonBytes, &restored)
	require.NoError(t, err)
	assert.True(t, restored.ID1.Equals(&id))

	err = json.Unmarshal([]byte(`{"id2":"wrong"}`), &restored)
	assert.Regexp(t, "FM010000", err)

	err = json.Unmarshal([]byte(`{"id2":12345}`), &restored)
	assert.Error(t, err)
}

func TestBytes32DatabaseSerialization(t *testing.T) {

	id := MustParseBytes32("0x512d0e595c71863c47e803c565562f9284a48ee8984f4f9b55323eed72cf1414")
	v, err := id.Value()
	require.NoError(t, err)
	assert.Equal(t, "0x512d0e595c71863c47e803c565562f9284a48ee8984f4f9b55323eed72cf1414", v)

	var id2 Bytes32
	require.NoError(t, id2.Scan(v))
	assert.Equal(t, id, id2)

	var id3 Bytes32
	require.NoError(t, id3.Scan(id.Bytes()))
	assert.Equal(t, id, id3)

	var id4 Bytes32
	require.NoError(t, id4.Scan([]byte(id.HexString())))
	assert.Equal(t, id, id4)

	var id5 Bytes32
	require.NoError(t, id5.Scan(nil))
	assert.True(t, id5.IsZero())

	var id6 Bytes32
	err = id6.Scan(12345)
	assert.Regexp(t, "FM010002", err)

}
