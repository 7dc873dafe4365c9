// Copyright 2023 Blink Labs Software
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

// Package dex interprets DEX transactions into pool mean values and executed
// swaps. One interpreter per protocol variant; a tagged kind selects the
// implementation, so unknown pool types are inert rather than an error.
package dex

import (
	"bytes"
	"context"
	"encoding/hex"

	"github.com/blinklabs-io/wtp/internal/address"
	"github.com/blinklabs-io/wtp/internal/common"
	"github.com/blinklabs-io/wtp/internal/config"
	"github.com/blinklabs-io/wtp/internal/follower"
	"github.com/blinklabs-io/wtp/internal/plutus"
)

// UtxoSource reconstructs the outputs referenced by a transaction's inputs.
// The result is parallel to the inputs; a nil entry means the referenced
// UTXO is not known.
type UtxoSource interface {
	GetUtxoInputs(
		ctx context.Context,
		inputs []follower.TxInputRecord,
	) ([]*follower.TxOutputRecord, error)
}

// Kind identifies a protocol interpreter
type Kind int

const (
	Inert Kind = iota
	WingRidersV1
	MinSwapV1
	SundaeSwapV1
)

// KindFromType maps a pool config type tag to an interpreter kind. Unknown
// tags are tolerated as inert.
func KindFromType(poolType string) Kind {
	switch poolType {
	case "WingRiders":
		return WingRidersV1
	case "MinSwapV1":
		return MinSwapV1
	case "SundaeSwap":
		return SundaeSwapV1
	}
	return Inert
}

// MeanValue extracts the pool's reserve snapshot after the transaction, or
// nil when the transaction doesn't update this pool. A malformed datum is
// returned as an error; callers treat it as an empty result.
func MeanValue(
	pool *config.PoolConfig,
	tx *follower.TransactionRecord,
) (*common.AssetAmount, *common.AssetAmount, error) {
	switch KindFromType(pool.Type) {
	case WingRidersV1:
		return wingRidersMeanValue(pool, tx)
	case MinSwapV1:
		return minSwapMeanValue(pool, tx)
	case SundaeSwapV1:
		return sundaeSwapMeanValue(pool, tx)
	}
	return nil, nil, nil
}

// Swaps extracts the individual orders executed against the pool in this
// transaction. Order inputs are reconstructed through the UtxoSource.
func Swaps(
	ctx context.Context,
	pool *config.PoolConfig,
	utxos UtxoSource,
	tx *follower.TransactionRecord,
) ([]common.Swap, error) {
	switch KindFromType(pool.Type) {
	case WingRidersV1:
		return wingRidersSwaps(ctx, pool, utxos, tx)
	case MinSwapV1:
		return minSwapSwaps(ctx, pool, utxos, tx)
	case SundaeSwapV1:
		return sundaeSwapSwaps(ctx, pool, utxos, tx)
	}
	return nil, nil
}

// getAmount returns the output's quantity of the given asset: the lovelace
// amount when both identifiers are empty, the summed native-asset amount
// otherwise.
func getAmount(output *follower.TxOutputRecord, policyId, name string) uint64 {
	if policyId == "" && name == "" {
		return output.Amount
	}
	var sum uint64
	for _, asset := range output.Assets {
		if asset.Policy == policyId && asset.Asset == name {
			sum += asset.Amount
		}
	}
	return sum
}

// reduceAdaAmount returns the fee floor to subtract from an ADA leg: the
// given amount for ADA, zero for any native asset
func reduceAdaAmount(policyId, name string, amount uint64) uint64 {
	if policyId == "" && name == "" {
		return amount
	}
	return 0
}

// findOutputByPaymentHash returns the first output whose payment credential
// matches the given script hash
func findOutputByPaymentHash(
	outputs []follower.TxOutputRecord,
	scriptHash []byte,
) *follower.TxOutputRecord {
	for i := range outputs {
		if bytes.Equal(address.PaymentHash(outputs[i].Address), scriptHash) {
			return &outputs[i]
		}
	}
	return nil
}

// findOutputByAddress returns the first output at the given address
func findOutputByAddress(
	outputs []follower.TxOutputRecord,
	addr string,
) *follower.TxOutputRecord {
	for i := range outputs {
		if outputs[i].Address == addr {
			return &outputs[i]
		}
	}
	return nil
}

// findDatum returns the witnessed datum with the given hash
func findDatum(
	tx *follower.TransactionRecord,
	datumHash string,
) *plutus.Data {
	if datumHash == "" {
		return nil
	}
	for i := range tx.PlutusData {
		if tx.PlutusData[i].DatumHash == datumHash {
			return &tx.PlutusData[i].PlutusData
		}
	}
	return nil
}

// credentialsToAddress rebuilds a beneficiary address from two hex-encoded
// credential hashes found in an order datum
func credentialsToAddress(firstHex, secondHex string) (string, error) {
	payment, err := hex.DecodeString(firstHex)
	if err != nil {
		return "", err
	}
	stake, err := hex.DecodeString(secondHex)
	if err != nil {
		return "", err
	}
	return address.FromCredentials(payment, stake)
}
