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

package retry

import (
	"context"
	"time"

	"github.com/finmesh-network/finmesh/internal/confutil"
	ffretry "github.com/hyperledger/firefly-common/pkg/retry"
)

type Config struct {
	InitialDelay *string  `json:"initialDelay"`
	MaxDelay     *string  `json:"maxDelay"`
	Factor       *float64 `json:"factor"`
}

type ConfigWithMax struct {
	Config
	MaxAttempts *int `json:"maxAttempts"`
}

var Defaults = &ConfigWithMax{
	Config: Config{
		InitialDelay: confutil.P("250ms"),
		MaxDelay:     confutil.P("30s"),
		Factor:       confutil.P(2.0),
	},
	MaxAttempts: confutil.P(3),
}

// Retry wraps the exponential backoff loop with an optional attempt cap.
// maxAttempts <= 0 retries indefinitely (until the context cancels).
type Retry struct {
	ffr         ffretry.Retry
	maxAttempts int
}

func NewRetryIndefinite(conf *Config) *Retry {
	return &Retry{ffr: backoff(conf)}
}

func NewRetryLimited(conf *ConfigWithMax) *Retry {
	return &Retry{
		ffr:         backoff(&conf.Config),
		maxAttempts: confutil.Int(conf.MaxAttempts, *Defaults.MaxAttempts),
	}
}

func backoff(conf *Config) ffretry.Retry {
	return ffretry.Retry{
		InitialDelay: confutil.Duration(conf.InitialDelay, confutil.Duration(Defaults.InitialDelay, 250*time.Millisecond)),
		MaximumDelay: confutil.Duration(conf.MaxDelay, confutil.Duration(Defaults.MaxDelay, 30*time.Second)),
		Factor:       confutil.Float64(conf.Factor, *Defaults.Factor),
	}
}

func (r *Retry) Do(ctx context.Context, logDescription string, f func(attempt int) (retryable bool, err error)) error {
	return r.ffr.Do(ctx, logDescription, func(attempt int) (retry bool, err error) {
		retry, err = f(attempt)
		if retry && r.maxAttempts > 0 && attempt >= r.maxAttempts {
			retry = false
		}
		return retry, err
	})
}

// UnitTestRetry returns fast settings so retry paths complete quickly.
func UnitTestRetry() *Retry {
	return &Retry{
		ffr: ffretry.Retry{
			InitialDelay: 1 * time.Microsecond,
			MaximumDelay: 10 * time.Microsecond,
			Factor:       1.1,
		},
		maxAttempts: 2,
	}
}
