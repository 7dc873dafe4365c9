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

package dex_test

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/blinklabs-io/wtp/internal/address"
	"github.com/blinklabs-io/wtp/internal/config"
	"github.com/blinklabs-io/wtp/internal/dex"
	"github.com/blinklabs-io/wtp/internal/follower"
	"github.com/blinklabs-io/wtp/internal/plutus"
)

// msPoolDatum builds a MinSwap v1 pool datum naming the asset pair
func msPoolDatum(
	policy1 string,
	name1 string,
	policy2 string,
	name2 string,
) plutus.Data {
	return pConstr(0,
		pConstr(0, pBytes(policy1), pBytes(name1)),
		pConstr(0, pBytes(policy2), pBytes(name2)),
	)
}

// msOrderDatum builds a MinSwap v1 swap order requesting the given result
// asset for the given beneficiary credentials
func msOrderDatum(
	resultPolicy string,
	resultName string,
	paymentHex string,
	stakeHex string,
) plutus.Data {
	beneficiary := pConstr(0,
		pConstr(0, pBytes(paymentHex)),
		pConstr(0, pConstr(0, pConstr(0, pBytes(stakeHex)))),
	)
	return pConstr(0,
		pInt(0),
		beneficiary,
		pInt(0),
		pConstr(0, pConstr(0, pBytes(resultPolicy), pBytes(resultName))),
	)
}

func msTestCredentials() ([]byte, []byte) {
	payment := make([]byte, 28)
	stake := make([]byte, 28)
	for i := range payment {
		payment[i] = 0x42
		stake[i] = 0x99
	}
	return payment, stake
}

func TestMinSwapMeanValue(t *testing.T) {
	poolAddr, scriptHash := scriptAddress(t, 0x03)
	pool := &config.PoolConfig{
		Type:       "MinSwapV1",
		ScriptHash: scriptHash,
	}
	tx := &follower.TransactionRecord{
		Outputs: []follower.TxOutputRecord{
			{
				Address: poolAddr,
				Amount:  50_000_000,
				Assets: []follower.OutputAssetRecord{
					{Policy: "aa", Asset: "bb", Amount: 2500},
				},
				DatumHash: "pool",
			},
		},
		PlutusData: []follower.PlutusDatumRecord{
			{DatumHash: "pool", PlutusData: msPoolDatum("", "", "aa", "bb")},
		},
	}
	asset1, asset2, err := dex.MeanValue(pool, tx)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if asset1 == nil || asset2 == nil {
		t.Fatal("expected mean value")
	}
	if !asset1.Asset.IsLovelace() || asset1.Amount != 50_000_000 {
		t.Errorf("unexpected asset1: %v", asset1)
	}
	if asset2.Asset.PolicyId != "aa" || asset2.Amount != 2500 {
		t.Errorf("unexpected asset2: %v", asset2)
	}
}

// msSwapTx builds a transaction with one executed order. The order requests
// resultPolicy/resultName and its result lands at the beneficiary address.
func msSwapTx(
	t *testing.T,
	poolAddr string,
	orderAddr string,
	resultPolicy string,
	resultName string,
	resultOutput follower.TxOutputRecord,
) (*follower.TransactionRecord, *fakeUtxoSource) {
	t.Helper()
	payment, stake := msTestCredentials()
	beneficiary, err := address.FromCredentials(payment, stake)
	if err != nil {
		t.Fatalf("failed to build beneficiary: %s", err)
	}
	resultOutput.Address = beneficiary
	tx := &follower.TransactionRecord{
		Hash: "cafe02",
		Inputs: []follower.TxInputRecord{
			{TxId: "00", Index: 0},
			{TxId: "01", Index: 1},
		},
		Outputs: []follower.TxOutputRecord{
			{
				Address: poolAddr,
				Amount:  60_000_000,
				Assets: []follower.OutputAssetRecord{
					{Policy: "aa", Asset: "bb", Amount: 3000},
				},
				DatumHash: "pool",
			},
			resultOutput,
		},
		PlutusData: []follower.PlutusDatumRecord{
			{DatumHash: "pool", PlutusData: msPoolDatum("", "", "aa", "bb")},
			{
				DatumHash: "order",
				PlutusData: msOrderDatum(
					resultPolicy,
					resultName,
					hex.EncodeToString(payment),
					hex.EncodeToString(stake),
				),
			},
		},
	}
	utxos := &fakeUtxoSource{
		outputs: []*follower.TxOutputRecord{
			{Address: poolAddr, Amount: 55_000_000, DatumHash: "pool"},
			{
				Address:   orderAddr,
				Amount:    6_000_000,
				DatumHash: "order",
			},
		},
	}
	return tx, utxos
}

func TestMinSwapSwapSell(t *testing.T) {
	poolAddr, scriptHash := scriptAddress(t, 0x03)
	orderAddr := "addr1minswaporders"
	pool := &config.PoolConfig{
		Type:       "MinSwapV1",
		ScriptHash: scriptHash,
		Address:    orderAddr,
	}
	// The order wants the pool's second asset
	tx, utxos := msSwapTx(t, poolAddr, orderAddr, "aa", "bb",
		follower.TxOutputRecord{
			Amount: 2_000_000,
			Assets: []follower.OutputAssetRecord{
				{Policy: "aa", Asset: "bb", Amount: 500},
			},
		},
	)
	swaps, err := dex.Swaps(context.Background(), pool, utxos, tx)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(swaps) != 1 {
		t.Fatalf("expected 1 swap, got %d", len(swaps))
	}
	swap := swaps[0]
	if swap.Direction {
		t.Errorf("expected Sell direction")
	}
	// ADA in: 6_000_000 - 4_000_000
	if swap.First.Amount != 2_000_000 {
		t.Errorf("expected amount1 2_000_000, got %d", swap.First.Amount)
	}
	if swap.Second.Amount != 500 {
		t.Errorf("expected amount2 500, got %d", swap.Second.Amount)
	}
}

func TestMinSwapSwapBuy(t *testing.T) {
	poolAddr, scriptHash := scriptAddress(t, 0x03)
	orderAddr := "addr1minswaporders"
	pool := &config.PoolConfig{
		Type:       "MinSwapV1",
		ScriptHash: scriptHash,
		Address:    orderAddr,
	}
	// The order wants ADA, so the trade goes the other way
	tx, utxos := msSwapTx(t, poolAddr, orderAddr, "", "",
		follower.TxOutputRecord{
			Amount: 9_000_000,
		},
	)
	// The order paid in tokens
	utxos.outputs[1].Assets = []follower.OutputAssetRecord{
		{Policy: "aa", Asset: "bb", Amount: 450},
	}
	swaps, err := dex.Swaps(context.Background(), pool, utxos, tx)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(swaps) != 1 {
		t.Fatalf("expected 1 swap, got %d", len(swaps))
	}
	swap := swaps[0]
	if !swap.Direction {
		t.Errorf("expected Buy direction")
	}
	// ADA out: 9_000_000 - 2_000_000
	if swap.First.Amount != 7_000_000 {
		t.Errorf("expected amount1 7_000_000, got %d", swap.First.Amount)
	}
	if swap.Second.Amount != 450 {
		t.Errorf("expected amount2 450, got %d", swap.Second.Amount)
	}
}

func TestMinSwapSwapIgnoresForeignInputs(t *testing.T) {
	poolAddr, scriptHash := scriptAddress(t, 0x03)
	pool := &config.PoolConfig{
		Type:       "MinSwapV1",
		ScriptHash: scriptHash,
		Address:    "addr1minswaporders",
	}
	tx, utxos := msSwapTx(t, poolAddr, "addr1somebodyelse", "aa", "bb",
		follower.TxOutputRecord{Amount: 2_000_000},
	)
	swaps, err := dex.Swaps(context.Background(), pool, utxos, tx)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(swaps) != 0 {
		t.Errorf("expected no swaps, got %d", len(swaps))
	}
}
