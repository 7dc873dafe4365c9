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

const (
	ms1AdaSwapIn  = 4_000_000
	ms1AdaSwapOut = 2_000_000
)

// msExtractAssets reads the pool's asset pair from a MinSwap v1 pool datum
func msExtractAssets(datum *plutus.Data) (common.Asset, common.Asset, error) {
	var ret [2]common.Asset
	for i := 0; i < 2; i++ {
		policy, err := datum.BytesAt(i, 0)
		if err != nil {
			return ret[0], ret[1], err
		}
		name, err := datum.BytesAt(i, 1)
		if err != nil {
			return ret[0], ret[1], err
		}
		ret[i] = common.Asset{PolicyId: policy, Name: name}
	}
	return ret[0], ret[1], nil
}

// msBeneficiary rebuilds the order beneficiary address from the credential
// pair embedded in a MinSwap v1 order datum
func msBeneficiary(datum *plutus.Data) (string, error) {
	first, err := datum.BytesAt(1, 0, 0)
	if err != nil {
		return "", err
	}
	second, err := datum.BytesAt(1, 1, 0, 0, 0)
	if err != nil {
		return "", err
	}
	return credentialsToAddress(first, second)
}

func minSwapMeanValue(
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
	asset1, asset2, err := msExtractAssets(datum)
	if err != nil {
		return nil, nil, err
	}
	return &common.AssetAmount{
			Asset:  asset1,
			Amount: getAmount(output, asset1.PolicyId, asset1.Name),
		},
		&common.AssetAmount{
			Asset:  asset2,
			Amount: getAmount(output, asset2.PolicyId, asset2.Name),
		},
		nil
}

func minSwapSwaps(
	ctx context.Context,
	pool *config.PoolConfig,
	utxos UtxoSource,
	tx *follower.TransactionRecord,
) ([]common.Swap, error) {
	logger := logging.GetLogger()
	var swaps []common.Swap
	scriptHash, err := hex.DecodeString(pool.ScriptHash)
	if err != nil {
		return nil, err
	}
	mainOutput := findOutputByPaymentHash(tx.Outputs, scriptHash)
	if mainOutput == nil {
		return swaps, nil
	}
	mainDatum := findDatum(tx, mainOutput.DatumHash)
	if mainDatum == nil {
		return swaps, nil
	}
	mainAsset1, mainAsset2, err := msExtractAssets(mainDatum)
	if err != nil {
		return nil, err
	}
	inputs, err := utxos.GetUtxoInputs(ctx, tx.Inputs)
	if err != nil {
		return nil, err
	}
	// Each order's result output is matched at most once
	freeUtxo := make([]*follower.TxOutputRecord, 0, len(tx.Outputs))
	for i := range tx.Outputs {
		freeUtxo = append(freeUtxo, &tx.Outputs[i])
	}
	// Orders are the inputs sitting at the configured order address with a
	// datum attached
	for _, input := range inputs {
		if input == nil || input.Address != pool.Address ||
			input.DatumHash == "" {
			continue
		}
		datum := findDatum(tx, input.DatumHash)
		if datum == nil {
			continue
		}
		operation, err := datum.ConstructorAt(3)
		if err != nil {
			return nil, err
		}
		if operation != 0 {
			continue
		}
		// The order names the asset it wants to receive
		policy, err := datum.BytesAt(3, 0, 0)
		if err != nil {
			return nil, err
		}
		name, err := datum.BytesAt(3, 0, 1)
		if err != nil {
			return nil, err
		}
		beneficiary, err := msBeneficiary(datum)
		if err != nil {
			return nil, err
		}
		utxoPos := -1
		for i, out := range freeUtxo {
			if out.Address == beneficiary {
				utxoPos = i
				break
			}
		}
		if utxoPos < 0 {
			logger.Info(
				"no result output for order",
				"tx", tx.Hash,
				"beneficiary", beneficiary,
			)
			continue
		}
		utxo := freeUtxo[utxoPos]
		freeUtxo = append(freeUtxo[:utxoPos], freeUtxo[utxoPos+1:]...)
		// Receiving asset2 means the order sold asset2's counterpart
		var amount1, amount2 uint64
		var direction bool
		if mainAsset2.PolicyId == policy && mainAsset2.Name == name {
			amount1 = getAmount(input, mainAsset1.PolicyId, mainAsset1.Name) -
				reduceAdaAmount(
					mainAsset1.PolicyId,
					mainAsset1.Name,
					ms1AdaSwapIn,
				)
			amount2 = getAmount(utxo, mainAsset2.PolicyId, mainAsset2.Name) -
				reduceAdaAmount(
					mainAsset2.PolicyId,
					mainAsset2.Name,
					ms1AdaSwapOut,
				)
			direction = false
		} else {
			amount1 = getAmount(utxo, mainAsset1.PolicyId, mainAsset1.Name) -
				reduceAdaAmount(
					mainAsset1.PolicyId,
					mainAsset1.Name,
					ms1AdaSwapOut,
				)
			amount2 = getAmount(input, mainAsset2.PolicyId, mainAsset2.Name) -
				reduceAdaAmount(
					mainAsset2.PolicyId,
					mainAsset2.Name,
					ms1AdaSwapIn,
				)
			direction = true
		}
		swaps = append(swaps, common.Swap{
			First:     common.AssetAmount{Asset: mainAsset1, Amount: amount1},
			Second:    common.AssetAmount{Asset: mainAsset2, Amount: amount2},
			Direction: direction,
		})
	}
	return swaps, nil
}
