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
	"encoding/json"
	"time"

	"github.com/finmesh-network/finmesh/internal/msgs"
	"github.com/hyperledger/firefly-common/pkg/i18n"
)

// Timestamp is a UTC timestamp held as nanoseconds since the unix epoch,
// serialized to JSON as an RFC3339 nano string.
type Timestamp int64

func TimestampNow() Timestamp {
	return Timestamp(time.Now().UnixNano())
}

func TimestampFromUnix(unixTime int64) Timestamp {
	if unixTime < 1e10 {
		unixTime *= 1e9 // secs to nanos
	}
	return Timestamp(unixTime)
}

func (ts Timestamp) Time() time.Time {
	return time.Unix(0, int64(ts)).UTC()
}

func (ts Timestamp) UnixNano() int64 {
	return int64(ts)
}

func (ts Timestamp) String() string {
	return ts.Time().Format(time.RFC3339Nano)
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var iVal interface{}
	if err := json.Unmarshal(b, &iVal); err != nil {
		return err
	}
	switch v := iVal.(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return i18n.NewError(context.Background(), msgs.MsgTypesInvalidTimestamp, v)
		}
		*ts = Timestamp(t.UnixNano())
		return nil
	case float64:
		*ts = TimestampFromUnix(int64(v))
		return nil
	default:
		return i18n.NewError(context.Background(), msgs.MsgTypesInvalidTimestamp, iVal)
	}
}

// Stored in the DB as a signed 64bit nanosecond value
func (ts Timestamp) Value() (driver.Value, error) {
	return int64(ts), nil
}

func (ts *Timestamp) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		*ts = Timestamp(v)
		return nil
	case nil:
		*ts = 0
		return nil
	default:
		return i18n.NewError(context.Background(), msgs.MsgTypesScanFail, src, ts)
	}
}
