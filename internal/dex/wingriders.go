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

package dex

import (
	"context"
	"encoding/hex"

	"github.com/blinklabs-io/wtp/internal/common"
	"github.com/blinklabs-io/wtp/internal/config"
	"github.com/blinklabs-io/wtp/internal/follower"
	"github.com/blinklabs-io/wtp/internal/logging"
	"github.com/blinklabs-io/wtp/internal/plutus"
)

// Minimum-UTXO and protocol-fee floors on the ADA legs of WingRiders v1
// pool and order UTXOs
const (
	wrAdaPool    = 3_000_000
	wrAdaSwapIn  = 4_000_000
	wrAdaSwapOut = 2_000_000
)

// wrExtractAssets reads the pool's asset pair and treasury amounts from a
// WingRiders v1 pool datum
func wrExtractAssets(
	datum *plutus.Data,
) (common.AssetAmount, common.AssetAmount, error) {
	var ret [2]common.AssetAmount
	for i := 0; i < 2; i++ {
		policy, err := datum.BytesAt(1, 0, i, 0)
		if err != nil {
			return ret[0], ret[1], err
		}
		name, err := datum.BytesAt(1, 0, i, 1)
		if err != nil {
			return ret[0], ret[1], err
		}
		treasury, err := datum.IntAt(1, 2+i)
		if err != nil {
			return ret[0], ret[1], err
		}
		ret[i] = common.AssetAmount{
			Asset:  common.Asset{PolicyId: policy, Name: name},
			Amount: uint64(treasury),
		}
	}
	return ret[0], ret[1], nil
}

func wingRidersMeanValue(
	pool *config.PoolConfig,
	tx *follower.TransactionRecord,
) (*common.AssetAmount, *common.AssetAmount, error) {
	scriptHash, err := hex.DecodeString(pool.ScriptHash)
	if err != nil {
		return nil, nil, err
	}
	output := findOutputByPaymentHash(tx.Outputs, scriptHash)
	if output == nil {
		return nil, nil, nil
	}
	datum := findDatum(tx, output.DatumHash)
	if datum == nil {
		return nil, nil, nil
	}
	// The datum's amounts are the treasuries to subtract from the UTXO value
	asset1, asset2, err := wrExtractAssets(datum)
	if err != nil {
		return nil, nil, err
	}
	amount1 := getAmount(output, asset1.Asset.PolicyId, asset1.Asset.Name) -
		asset1.Amount -
		reduceAdaAmount(asset1.Asset.PolicyId, asset1.Asset.Name, wrAdaPool)
	amount2 := getAmount(output, asset2.Asset.PolicyId, asset2.Asset.Name) -
		asset2.Amount -
		reduceAdaAmount(asset2.Asset.PolicyId, asset2.Asset.Name, wrAdaPool)
	return &common.AssetAmount{Asset: asset1.Asset, Amount: amount1},
		&common.AssetAmount{Asset: asset2.Asset, Amount: amount2},
		nil
}

func wingRidersSwaps(
	ctx context.Context,
	pool *config.PoolConfig,
	utxos UtxoSource,
	tx *follower.TransactionRecord,
) ([]common.Swap, error) {
	logger := logging.GetLogger()
	var swaps []common.Swap
	if len(tx.PlutusRedeemers) == 0 {
		return swaps, nil
	}
	// The first redeemer points at the pool input
	poolInput, err := tx.PlutusRedeemers[0].PlutusData.IntAt(0)
	if err != nil {
		return nil, err
	}
	// Find the pool redeemer and its order index map
	var poolRedeemer *follower.PlutusRedeemerRecord
	for i := range tx.PlutusRedeemers {
		if tx.PlutusRedeemers[i].InputIdx == uint64(poolInput) {
			poolRedeemer = &tx.PlutusRedeemers[i]
			break
		}
	}
	if poolRedeemer == nil {
		logger.Info("redeemer not found", "tx", tx.Hash)
		return swaps, nil
	}
	orderIndices, err := poolRedeemer.PlutusData.IntListAt(2)
	if err != nil {
		return nil, err
	}
	inputs, err := utxos.GetUtxoInputs(ctx, tx.Inputs)
	if err != nil {
		return nil, err
	}
	if poolInput < 0 || int(poolInput) >= len(inputs) ||
		inputs[poolInput] == nil {
		logger.Info("missing pool UTxO", "tx", tx.Hash)
		return swaps, nil
	}
	// The pool's asset pair comes from the consumed pool UTXO's datum
	poolDatum := findDatum(tx, inputs[poolInput].DatumHash)
	if poolDatum == nil {
		return swaps, nil
	}
	asset1, asset2, err := wrExtractAssets(poolDatum)
	if err != nil {
		return nil, err
	}
	// Output 0 is the pool itself; the rest pair up with the order index map
	for i, orderIdx := range orderIndices {
		if i+1 >= len(tx.Outputs) {
			break
		}
		out := &tx.Outputs[i+1]
		if orderIdx < 0 || int(orderIdx) >= len(inputs) ||
			inputs[orderIdx] == nil {
			logger.Info("missing UTxO", "tx", tx.Hash, "input", orderIdx)
			continue
		}
		inp := inputs[orderIdx]
		datum := findDatum(tx, inp.DatumHash)
		if datum == nil {
			continue
		}
		operation, err := datum.ConstructorAt(1)
		if err != nil {
			return nil, err
		}
		if operation != 0 {
			logger.Info("operation is not swap", "tx", tx.Hash)
			continue
		}
		direction, err := datum.ConstructorAt(1, 0)
		if err != nil {
			return nil, err
		}
		var amount1, amount2 uint64
		if direction == 0 {
			amount1 = getAmount(inp, asset1.Asset.PolicyId, asset1.Asset.Name) -
				reduceAdaAmount(
					asset1.Asset.PolicyId,
					asset1.Asset.Name,
					wrAdaSwapIn,
				)
			amount2 = getAmount(out, asset2.Asset.PolicyId, asset2.Asset.Name) -
				reduceAdaAmount(
					asset2.Asset.PolicyId,
					asset2.Asset.Name,
					wrAdaSwapOut,
				)
		} else {
			amount1 = getAmount(out, asset1.Asset.PolicyId, asset1.Asset.Name) -
				reduceAdaAmount(
					asset1.Asset.PolicyId,
					asset1.Asset.Name,
					wrAdaSwapOut,
				)
			amount2 = getAmount(inp, asset2.Asset.PolicyId, asset2.Asset.Name) -
				reduceAdaAmount(
					asset2.Asset.PolicyId,
					asset2.Asset.Name,
					wrAdaSwapIn,
				)
		}
		swaps = append(swaps, common.Swap{
			First:     common.AssetAmount{Asset: asset1.Asset, Amount: amount1},
			Second:    common.AssetAmount{Asset: asset2.Asset, Amount: amount2},
			Direction: direction == 0,
		})
	}
	return swaps, nil
}
