// Copyright © 2026 FinMesh Network Contributors
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package msgs

import (
	"fmt"
	"strings"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"golang.org/x/text/language"
)

const finmeshPrefix = "FM01"

var registered = false
var ffe = func(key, translation string, statusHint ...int) i18n.ErrorMessageKey {
	if !registered {
		i18n.RegisterPrefix(finmeshPrefix, "FinMesh Settlement Node")
		registered = true
	}
	if !strings.HasPrefix(key, finmeshPrefix) {
		panic(fmt.Errorf("must have prefix '%s': %s", finmeshPrefix, key))
	}
	return i18n.FFE(language.AmericanEnglish, key, translation, statusHint...)
}

var (

	// Types FM0100XX
	MsgTypesInvalidHex           = ffe("FM010000", "Invalid hex: %s")
	MsgTypesInvalidHexLen        = ffe("FM010001", "Invalid length expected=%d actual=%d")
	MsgTypesScanFail             = ffe("FM010002", "Unable to scan type %T into type %T")
	MsgTypesEnumValueInvalid     = ffe("FM010003", "Value must be one of %s")
	MsgTypesInvalidJSON          = ffe("FM010004", "Invalid JSON")
	MsgTypesAmountMustBePositive = ffe("FM010006", "Amount must be a positive integer")
	MsgTypesInvalidTimestamp     = ffe("FM010007", "Invalid timestamp: %s")

	// Persistence FM0101XX
	MsgPersistenceInvalidType         = ffe("FM010100", "Invalid persistence type: %s")
	MsgPersistenceMissingURI          = ffe("FM010101", "Missing database connection URI")
	MsgPersistenceInitFailed          = ffe("FM010102", "Database init failed")
	MsgPersistenceMigrationFailed     = ffe("FM010103", "Database migration failed")
	MsgPersistenceMissingMigrationDir = ffe("FM010104", "Missing database migration directory for autoMigrate")

	// Component manager FM0102XX
	MsgComponentMgrUnknownComponent = ffe("FM010200", "Unknown component '%s'")
	MsgComponentMgrNilComponent     = ffe("FM010201", "Nil implementation supplied for component '%s'")
	MsgComponentMgrPaused           = ffe("FM010202", "Component '%s' is paused")
	MsgComponentMgrConfigFile       = ffe("FM010203", "Failed to read config file %s")
	MsgComponentMgrConfigParse      = ffe("FM010204", "Failed to parse config file %s")
	MsgComponentMgrLocalNetworkName = ffe("FM010205", "Local network name not configured")

	// Permissions FM0103XX
	MsgPermissionDenied     = ffe("FM010300", "Identity '%s' does not hold permission '%s'", 403)
	MsgPermissionUnknownTag = ffe("FM010301", "Unknown permission tag '%s'")
	MsgPermissionNoIdentity = ffe("FM010302", "No caller identity supplied")
	MsgPermissionLastAdmin  = ffe("FM010303", "Cannot revoke the last admin grant")

	// Target directory FM0104XX
	MsgTargetNotFound      = ffe("FM010400", "Target %s on network '%s' is not registered or not active", 404)
	MsgTargetAlreadyExists = ffe("FM010401", "Target %s on network '%s' is already registered", 409)
	MsgTargetInvalid       = ffe("FM010402", "Invalid target address")

	// Format validator FM0105XX
	MsgFormatUnknownMessageType = ffe("FM010500", "No format schema registered for message type '%s'")
	MsgFormatSchemaInvalid      = ffe("FM010501", "Format schema for message type '%s' is invalid")
	MsgFormatSchemaExists       = ffe("FM010502", "Format schema for message type '%s' already registered", 409)
	MsgFormatPayloadInvalid     = ffe("FM010503", "Payload failed format validation for message type '%s'")
	MsgFormatPayloadNotJSON     = ffe("FM010504", "Payload is not valid JSON")

	// Message record store FM0106XX
	MsgStoreMessageNotFound   = ffe("FM010600", "Message %s not found", 404)
	MsgStoreDuplicateMessage  = ffe("FM010601", "Message %s already registered", 409)
	MsgStoreInvalidTransition = ffe("FM010602", "Invalid status transition for message %s: %s -> %s")

	// Liquidity reserve FM0107XX
	MsgLiquidityPoolNotFound       = ffe("FM010700", "No liquidity pool for asset '%s'", 404)
	MsgLiquidityPoolExists         = ffe("FM010701", "Liquidity pool for asset '%s' already exists", 409)
	MsgLiquidityPoolInactive       = ffe("FM010702", "Liquidity pool for asset '%s' is not active")
	MsgLiquidityInsufficient       = ffe("FM010703", "Insufficient available liquidity in pool '%s': available=%s requested=%s")
	MsgLiquidityMaxExceeded        = ffe("FM010704", "Deposit would exceed maximum liquidity for pool '%s': max=%s")
	MsgLiquidityBelowMinimum       = ffe("FM010705", "Withdrawal would take pool '%s' below minimum liquidity: min=%s")
	MsgLiquidityLockExists         = ffe("FM010706", "Liquidity already locked for settlement %s", 409)
	MsgLiquidityInsufficientShares = ffe("FM010708", "Insufficient provider shares: held=%s requested=%s")
	MsgLiquidityZeroAmount         = ffe("FM010709", "Amount must be greater than zero")
	MsgLiquidityNoLock             = ffe("FM010710", "No liquidity lock held for settlement %s", 404)

	// Relay client FM0108XX
	MsgRelayNotConfigured = ffe("FM010800", "External relay endpoint is not configured")
	MsgRelayQuoteFailed   = ffe("FM010801", "Relay delivery quote failed for network '%s'")
	MsgRelayDispatchFail  = ffe("FM010802", "Relay dispatch failed for network '%s'")
	MsgRelayBadResponse   = ffe("FM010803", "Invalid response from relay: %s")

	// Router FM0109XX
	MsgRouterEmptyPayload     = ffe("FM010900", "Payload must not be empty")
	MsgRouterInvalidTarget    = ffe("FM010901", "Destination %s is not a valid target on network '%s'")
	MsgRouterDeliveryNotFound = ffe("FM010902", "No delivery recorded with hash %s", 404)
	MsgRouterFeeBelowQuote    = ffe("FM010903", "Delivery fee payment %s is below the quoted fee %s")

	// Processor FM0110XX
	MsgProcessorNoHandler        = ffe("FM011000", "No handler registered for message type '%s'")
	MsgProcessorHandlerExists    = ffe("FM011001", "Handler already registered for message type '%s'", 409)
	MsgProcessorAlreadyProcessed = ffe("FM011002", "Message %s has already been processed", 409)

	// Settlement coordinator FM0111XX
	MsgSettlementAlreadyProcessed = ffe("FM011100", "Settlement %s has already been processed", 409)
	MsgSettlementNotFound         = ffe("FM011101", "Settlement %s not found", 404)
	MsgSettlementNotInProgress    = ffe("FM011102", "Settlement %s is not in progress (status=%s)")
	MsgSettlementCancelStatus     = ffe("FM011103", "Settlement %s cannot be cancelled from status %s")
	MsgSettlementNotInitiator     = ffe("FM011104", "Only the initiator of settlement %s may cancel it", 403)
	MsgSettlementBadNotice        = ffe("FM011105", "Invalid settlement completion notice: %s")
	MsgSettlementZeroAmount       = ffe("FM011106", "Settlement amount must be greater than zero")

	// Orchestrator FM0112XX
	MsgOrchestratorEmptyPayload    = ffe("FM011200", "Submission payload must not be empty")
	MsgOrchestratorPayloadTooLarge = ffe("FM011201", "Submission payload size %d exceeds maximum %d")
	MsgOrchestratorNoDestination   = ffe("FM011202", "Submission destination must not be empty")
	MsgOrchestratorInsufficientFee = ffe("FM011203", "Fee payment %s is below the quoted total %s")
	MsgOrchestratorSubmissionLost  = ffe("FM011204", "No submission record held for message %s", 404)
	MsgOrchestratorNotSubmitter    = ffe("FM011205", "Only the original submitter of message %s may perform this operation", 403)
	MsgOrchestratorCancelStatus    = ffe("FM011206", "Message %s cannot be cancelled from status %s")
	MsgOrchestratorBusy            = ffe("FM011207", "Another operation is in progress for message %s", 409)
	MsgOrchestratorRetryStatus     = ffe("FM011208", "Message %s cannot be retried from status %s")

	// JSON-RPC server FM0113XX
	MsgJSONRPCMissingRequestID    = ffe("FM011300", "Invalid JSON/RPC: missing request ID", 400)
	MsgJSONRPCUnsupportedMethod   = ffe("FM011301", "method not supported", 400)
	MsgJSONRPCInvalidParam        = ffe("FM011302", "Invalid parameter %d for method %s: %s", 400)
	MsgJSONRPCIncorrectParamCount = ffe("FM011303", "Method %s requires %d params (supplied=%d)", 400)
	MsgJSONRPCInvalidRequest      = ffe("FM011304", "Invalid JSON/RPC request data", 400)
	MsgJSONRPCResultSerialization = ffe("FM011305", "Method %s result serialization failed: %s", 500)

	// HTTP server FM0114XX
	MsgHTTPServerStartFailed = ffe("FM011400", "Failed to start server on '%s'")
	MsgHTTPServerMissingPort = ffe("FM011401", "HTTP server port must be configured for '%s'")
	MsgHTTPServerNoWSUpgrade = ffe("FM011402", "HTTP server does not support WebSocket upgrade (%T)")

	// Entrypoint FM0115XX
	MsgEntrypointUnknownEngine = ffe("FM011500", "Unknown run mode '%s'")

	// Event broker FM0116XX
	MsgEventsDestinationNotFound = ffe("FM011600", "No subscriber registered for destination '%s'")

	// TLS FM0117XX
	MsgTLSInvalidCAFile             = ffe("FM011700", "Invalid CA certificates file")
	MsgTLSConfigFailed              = ffe("FM011701", "Failed to initialize TLS configuration")
	MsgTLSInvalidKeyPairFiles       = ffe("FM011702", "Invalid certificate and key pair files")
	MsgTLSInvalidTLSDnMatcherAttr   = ffe("FM011703", "Unknown DN attribute '%s'")
	MsgTLSInvalidTLSDnMatcherRegexp = ffe("FM011704", "Invalid regexp '%s' for DN attribute '%s': %s")
	MsgTLSInvalidTLSDnChain         = ffe("FM011705", "Cannot match subject distinguished name as cert chain is not verified")
	MsgTLSInvalidTLSDnMismatch      = ffe("FM011706", "Certificate subject does not meet requirements")
)
