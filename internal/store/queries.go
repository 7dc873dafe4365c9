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

package store

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/blinklabs-io/wtp/internal/common"
	"github.com/blinklabs-io/wtp/internal/follower"
)

// GetLatestPrices returns, for each distinct (script, token pair), the most
// recent mean-value observation. The monotonic row id is the time proxy.
func (s *Store) GetLatestPrices(
	ctx context.Context,
) ([]common.LatestExchangeRate, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT
		     price_update.script_hash,
		     t1.policy_id,
		     t1.name,
		     t2.policy_id,
		     t2.name,
		     price_update.amount1,
		     price_update.amount2
		 FROM price_update
		 JOIN token AS t1 ON t1.id = price_update.token1_id
		 JOIN token AS t2 ON t2.id = price_update.token2_id
		 WHERE (price_update.script_hash, price_update.token1_id, price_update.token2_id, price_update.id) IN (
		     SELECT script_hash, token1_id, token2_id, MAX(id)
		     FROM price_update
		     GROUP BY script_hash, token1_id, token2_id
		 )`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest prices: %w", err)
	}
	defer rows.Close()
	ret := []common.LatestExchangeRate{}
	for rows.Next() {
		var scriptHash, policy1, name1, policy2, name2 []byte
		var amount1, amount2 int64
		if err := rows.Scan(
			&scriptHash,
			&policy1,
			&name1,
			&policy2,
			&name2,
			&amount1,
			&amount2,
		); err != nil {
			return nil, fmt.Errorf("failed to scan exchange rate: %w", err)
		}
		ret = append(ret, common.LatestExchangeRate{
			ScriptHash: hex.EncodeToString(scriptHash),
			Asset1: common.AssetAmount{
				Asset: common.Asset{
					PolicyId: hex.EncodeToString(policy1),
					Name:     hex.EncodeToString(name1),
				},
				Amount: uint64(amount1),
			},
			Asset2: common.AssetAmount{
				Asset: common.Asset{
					PolicyId: hex.EncodeToString(policy2),
					Name:     hex.EncodeToString(name2),
				},
				Amount: uint64(amount2),
			},
			Rate: float64(amount1) / float64(amount2),
		})
	}
	return ret, rows.Err()
}

// GetAssets enumerates all known tokens keyed by id
func (s *Store) GetAssets(
	ctx context.Context,
) (map[int64]common.Asset, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, policy_id, name FROM token`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()
	ret := make(map[int64]common.Asset)
	for rows.Next() {
		var id int64
		var policy, name []byte
		if err := rows.Scan(&id, &policy, &name); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		ret[id] = common.Asset{
			PolicyId: hex.EncodeToString(policy),
			Name:     hex.EncodeToString(name),
		}
	}
	return ret, rows.Err()
}

// GetTokenPriceHistory returns the last count price updates for the token
// pair, most recent first
func (s *Store) GetTokenPriceHistory(
	ctx context.Context,
	assetId1 int64,
	assetId2 int64,
	count uint64,
) ([]common.ExchangeHistory, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT amount1, amount2, tx_id FROM price_update
		 WHERE token1_id = $1 AND token2_id = $2
		 ORDER BY tx_id DESC
		 LIMIT $3`,
		assetId1,
		assetId2,
		int64(count),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()
	ret := []common.ExchangeHistory{}
	for rows.Next() {
		var amount1, amount2, txId int64
		if err := rows.Scan(&amount1, &amount2, &txId); err != nil {
			return nil, fmt.Errorf("failed to scan price history: %w", err)
		}
		ret = append(ret, common.ExchangeHistory{
			Amount1: amount1,
			Amount2: amount2,
			Rate:    float64(amount1) / float64(amount2),
			TxId:    txId,
		})
	}
	return ret, rows.Err()
}

// GetSwapHistory returns the last count swaps for the token pair, most
// recent first
func (s *Store) GetSwapHistory(
	ctx context.Context,
	assetId1 int64,
	assetId2 int64,
	count uint64,
) ([]common.SwapHistory, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT amount1, amount2, tx_id, direction FROM swap
		 WHERE token1_id = $1 AND token2_id = $2
		 ORDER BY tx_id DESC
		 LIMIT $3`,
		assetId1,
		assetId2,
		int64(count),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query swap history: %w", err)
	}
	defer rows.Close()
	ret := []common.SwapHistory{}
	for rows.Next() {
		var amount1, amount2, txId int64
		var direction bool
		if err := rows.Scan(&amount1, &amount2, &txId, &direction); err != nil {
			return nil, fmt.Errorf("failed to scan swap history: %w", err)
		}
		ret = append(ret, common.SwapHistory{
			Amount1:   amount1,
			Amount2:   amount2,
			TxId:      txId,
			Direction: common.DirectionString(direction),
		})
	}
	return ret, rows.Err()
}

// GetUtxoInputs reconstructs the outputs the given inputs refer to. The
// result is parallel to the inputs; entries we don't have indexed stay nil.
// One query joins the output rows, a second one collects all their token
// transfers, regardless of input count.
func (s *Store) GetUtxoInputs(
	ctx context.Context,
	inputs []follower.TxInputRecord,
) ([]*follower.TxOutputRecord, error) {
	ret := make([]*follower.TxOutputRecord, len(inputs))
	if len(inputs) == 0 {
		return ret, nil
	}
	hashes := make([][]byte, 0, len(inputs))
	indexes := make([]int32, 0, len(inputs))
	for _, input := range inputs {
		hash, err := hex.DecodeString(input.TxId)
		if err != nil {
			return nil, fmt.Errorf("invalid input tx hash: %w", err)
		}
		hashes = append(hashes, hash)
		indexes = append(indexes, int32(input.Index))
	}
	rows, err := s.pool.Query(
		ctx,
		`SELECT o.id, o.index, o.datum_hash, t.hash, a.payload
		 FROM transaction_output AS o
		 JOIN transaction AS t ON t.id = o.tx_id
		 JOIN address AS a ON a.id = o.address_id
		 JOIN unnest($1::bytea[], $2::int[]) AS r (hash, index)
		     ON t.hash = r.hash AND o.index = r.index`,
		hashes,
		indexes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query UTxO inputs: %w", err)
	}
	outputIds := []int64{}
	outputsById := make(map[int64]*follower.TxOutputRecord)
	outputsByRef := make(map[string]*follower.TxOutputRecord)
	for rows.Next() {
		var id int64
		var index int32
		var datumHash *string
		var txHash []byte
		var payload string
		if err := rows.Scan(&id, &index, &datumHash, &txHash, &payload); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan UTxO input: %w", err)
		}
		record := &follower.TxOutputRecord{
			Address: payload,
		}
		if datumHash != nil {
			record.DatumHash = *datumHash
		}
		outputIds = append(outputIds, id)
		outputsById[id] = record
		ref := fmt.Sprintf("%s.%d", hex.EncodeToString(txHash), index)
		outputsByRef[ref] = record
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(outputIds) > 0 {
		transferRows, err := s.pool.Query(
			ctx,
			`SELECT tt.output_id, tt.amount, tk.policy_id, tk.name
			 FROM token_transfer AS tt
			 JOIN token AS tk ON tk.id = tt.token_id
			 WHERE tt.output_id = ANY($1)`,
			outputIds,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query token transfers: %w", err)
		}
		defer transferRows.Close()
		for transferRows.Next() {
			var outputId, amount int64
			var policy, name []byte
			if err := transferRows.Scan(
				&outputId,
				&amount,
				&policy,
				&name,
			); err != nil {
				return nil, fmt.Errorf(
					"failed to scan token transfer: %w",
					err,
				)
			}
			record := outputsById[outputId]
			if record == nil {
				continue
			}
			if len(policy) == 0 && len(name) == 0 {
				record.Amount = uint64(amount)
			} else {
				record.Assets = append(record.Assets, follower.OutputAssetRecord{
					Policy: hex.EncodeToString(policy),
					Asset:  hex.EncodeToString(name),
					Amount: uint64(amount),
				})
			}
		}
		if err := transferRows.Err(); err != nil {
			return nil, err
		}
	}
	for i, input := range inputs {
		ref := fmt.Sprintf("%s.%d", input.TxId, input.Index)
		ret[i] = outputsByRef[ref]
	}
	return ret, nil
}
