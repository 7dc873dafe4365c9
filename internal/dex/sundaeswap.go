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
	"bytes"
	"context"
	"encoding/hex"

	"github.com/blinklabs-io/wtp/internal/address"
	"github.com/blinklabs-io/wtp/internal/common"
	"github.com/blinklabs-io/wtp/internal/config"
	"github.com/blinklabs-io/wtp/internal/follower"
	"github.com/blinklabs-io/wtp/internal/logging"
	"github.com/blinklabs-io/wtp/internal/plutus"
)

const (
	ss1AdaSwapIn  = 4_500_000
	ss1AdaSwapOut = 2_000_000
)

// ssExtractAssets reads the pool's asset pair from a SundaeSwap v1 pool datum
func ssExtractAssets(datum *plutus.Data) (common.Asset, common.Asset, error) {
	var ret [2]common.Asset
	for i := 0; i < 2; i++ {
		policy, err := datum.BytesAt(0, i, 0)
		if err != nil {
			return ret[0], ret[1], err
		}
		name, err := datum.BytesAt(0, i, 1)
		if err != nil {
			return ret[0], ret[1], err
		}
		ret[i] = common.Asset{PolicyId: policy, Name: name}
	}
	return ret[0], ret[1], nil
}

// ssBeneficiary rebuilds the order beneficiary address from a SundaeSwap v1
// order datum, which nests the credential pair deeper than MinSwap does
func ssBeneficiary(datum *plutus.Data) (string, error) {
	first, err := datum.BytesAt(1, 0, 0, 0, 0)
	if err != nil {
		return "", err
	}
	second, err := datum.BytesAt(1, 0, 0, 1, 0, 0, 0)
	if err != nil {
		return "", err
	}
	return credentialsToAddress(first, second)
}

func sundaeSwapMeanValue(
	pool *config.PoolConfig,
	tx *follower.TransactionRecord,
) (*common.AssetAmount, *common.AssetAmount, error) {
	// SundaeSwap pools are matched on the canonical address text rather
	// than the payment credential
	output := findOutputByAddress(tx.Outputs, pool.Address)
	if output == nil {
		return nil, nil, nil
	}
	datum := findDatum(tx, output.DatumHash)
	if datum == nil {
		return nil, nil, nil
	}
	asset1, asset2, err := ssExtractAssets(datum)
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

func sundaeSwapSwaps(
	ctx context.Context,
	pool *config.PoolConfig,
	utxos UtxoSource,
	tx *follower.TransactionRecord,
) ([]common.Swap, error) {
	logger := logging.GetLogger()
	var swaps []common.Swap
	output := findOutputByAddress(tx.Outputs, pool.Address)
	if output == nil {
		return swaps, nil
	}
	datum := findDatum(tx, output.DatumHash)
	if datum == nil {
		return swaps, nil
	}
	asset1, asset2, err := ssExtractAssets(datum)
	if err != nil {
		return nil, err
	}
	orderHash, err := hex.DecodeString(pool.RequestHash)
	if err != nil {
		return nil, err
	}
	inputs, err := utxos.GetUtxoInputs(ctx, tx.Inputs)
	if err != nil {
		return nil, err
	}
	freeUtxo := make([]*follower.TxOutputRecord, 0, len(tx.Outputs))
	for i := range tx.Outputs {
		freeUtxo = append(freeUtxo, &tx.Outputs[i])
	}
	// Orders sit at the order validator's payment credential
	for _, input := range inputs {
		if input == nil ||
			!bytes.Equal(address.PaymentHash(input.Address), orderHash) {
			continue
		}
		orderDatum := findDatum(tx, input.DatumHash)
		if orderDatum == nil {
			continue
		}
		operation, err := orderDatum.ConstructorAt(3)
		if err != nil {
			return nil, err
		}
		if operation != 0 {
			continue
		}
		beneficiary, err := ssBeneficiary(orderDatum)
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
		direction, err := orderDatum.ConstructorAt(3, 0)
		if err != nil {
			return nil, err
		}
		var amount1, amount2 uint64
		if direction == 0 {
			amount1 = getAmount(input, asset1.PolicyId, asset1.Name) -
				reduceAdaAmount(asset1.PolicyId, asset1.Name, ss1AdaSwapIn)
			amount2 = getAmount(utxo, asset2.PolicyId, asset2.Name) -
				reduceAdaAmount(asset2.PolicyId, asset2.Name, ss1AdaSwapOut)
		} else {
			amount1 = getAmount(utxo, asset1.PolicyId, asset1.Name) -
				reduceAdaAmount(asset1.PolicyId, asset1.Name, ss1AdaSwapOut)
			amount2 = getAmount(input, asset2.PolicyId, asset2.Name) -
				reduceAdaAmount(asset2.PolicyId, asset2.Name, ss1AdaSwapIn)
		}
		swaps = append(swaps, common.Swap{
			First:     common.AssetAmount{Asset: asset1, Amount: amount1},
			Second:    common.AssetAmount{Asset: asset2, Amount: amount2},
			Direction: direction != 0,
		})
	}
	return swaps, nil
}
