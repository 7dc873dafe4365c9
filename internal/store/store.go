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

// Package store persists indexed chain data to PostgreSQL. All dependent
// rows hang off block via ON DELETE CASCADE, which makes rollbacks a single
// delete by slot.
package store

import (
	"context"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/blinklabs-io/wtp/internal/common"
	"github.com/blinklabs-io/wtp/internal/follower"
	"github.com/blinklabs-io/wtp/internal/logging"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSql string

// adaToken is the asset with empty policy and name
var adaToken = common.Asset{}

type Store struct {
	pool *pgxpool.Pool
}

// querier is satisfied by both the pool and an open transaction
type querier interface {
	Exec(
		ctx context.Context,
		sql string,
		args ...any,
	) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect initializes the connection pool
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	logging.GetLogger().Info("connected to database")
	return &Store{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema creates the tables and seeds the ADA token row
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSql); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// InsertBlock inserts a block row, linking it to its parent when the parent
// hash is already indexed
func (s *Store) InsertBlock(
	ctx context.Context,
	block *follower.BlockRecord,
) (int64, error) {
	if block.Epoch == nil {
		return 0, &ShapeError{Entity: "block", Field: "epoch"}
	}
	hash, err := hex.DecodeString(block.Hash)
	if err != nil {
		return 0, fmt.Errorf("invalid block hash: %w", err)
	}
	previousHash, err := hex.DecodeString(block.PreviousHash)
	if err != nil {
		return 0, fmt.Errorf("invalid previous block hash: %w", err)
	}
	// Root blocks (parent before the intersect point) carry a null parent
	var previousBlockId *int64
	var previousId int64
	err = s.pool.QueryRow(
		ctx,
		`SELECT id FROM block WHERE hash = $1`,
		previousHash,
	).Scan(&previousId)
	switch {
	case err == nil:
		previousBlockId = &previousId
	case !errors.Is(err, pgx.ErrNoRows):
		return 0, fmt.Errorf("failed to look up previous block: %w", err)
	}
	var blockId int64
	err = s.pool.QueryRow(
		ctx,
		`INSERT INTO block (hash, height, epoch, slot, previous_block_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		hash,
		int64(block.Number),
		int64(*block.Epoch),
		int64(block.Slot),
		previousBlockId,
	).Scan(&blockId)
	if err != nil {
		return 0, fmt.Errorf("failed to insert block: %w", err)
	}
	return blockId, nil
}

// RollbackToSlot deletes all blocks past the given slot. The cascades remove
// every dependent row. Repeating the same rollback is a no-op.
//
// We remove based on slot rather than the rollback event's block hash
// because the corresponding block might not even be present in the db,
// depending on the configured start point.
func (s *Store) RollbackToSlot(ctx context.Context, slot uint64) error {
	if _, err := s.pool.Exec(
		ctx,
		`DELETE FROM block WHERE slot > $1`,
		int64(slot),
	); err != nil {
		return fmt.Errorf("failed to roll back to slot %d: %w", slot, err)
	}
	return nil
}

// InsertTransaction inserts the transaction with its outputs and token
// transfers, upserting any addresses and tokens it references
func (s *Store) InsertTransaction(
	ctx context.Context,
	txRecord *follower.TransactionRecord,
	blockId int64,
) (int64, error) {
	hash, err := hex.DecodeString(txRecord.Hash)
	if err != nil {
		return 0, fmt.Errorf("invalid transaction hash: %w", err)
	}
	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = dbTx.Rollback(ctx) }()

	var txId int64
	err = dbTx.QueryRow(
		ctx,
		`INSERT INTO transaction (hash, block_id) VALUES ($1, $2) RETURNING id`,
		hash,
		blockId,
	).Scan(&txId)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}

	addressSet := make(map[string]struct{})
	tokenSet := map[common.Asset]struct{}{adaToken: {}}
	for _, output := range txRecord.Outputs {
		addressSet[output.Address] = struct{}{}
		for _, asset := range output.Assets {
			tokenSet[common.Asset{
				PolicyId: asset.Policy,
				Name:     asset.Asset,
			}] = struct{}{}
		}
	}
	addressIds, err := upsertAddresses(ctx, dbTx, addressSet)
	if err != nil {
		return 0, err
	}
	tokenIds, err := upsertTokens(ctx, dbTx, tokenSet)
	if err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	for index, output := range txRecord.Outputs {
		addressId, ok := addressIds[output.Address]
		if !ok {
			return 0, notFound("address")
		}
		var datumHash *string
		if output.DatumHash != "" {
			datumHash = &output.DatumHash
		}
		var outputId int64
		err = dbTx.QueryRow(
			ctx,
			`INSERT INTO transaction_output (tx_id, index, address_id, datum_hash)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			txId,
			int32(index),
			addressId,
			datumHash,
		).Scan(&outputId)
		if err != nil {
			return 0, fmt.Errorf("failed to insert output: %w", err)
		}
		// ADA transfer
		adaId, ok := tokenIds[adaToken]
		if !ok {
			return 0, notFound("token")
		}
		batch.Queue(
			`INSERT INTO token_transfer (output_id, token_id, amount)
			 VALUES ($1, $2, $3)`,
			outputId,
			adaId,
			int64(output.Amount),
		)
		// Other token transfers
		for _, asset := range output.Assets {
			tokenId, ok := tokenIds[common.Asset{
				PolicyId: asset.Policy,
				Name:     asset.Asset,
			}]
			if !ok {
				return 0, notFound("token")
			}
			batch.Queue(
				`INSERT INTO token_transfer (output_id, token_id, amount)
				 VALUES ($1, $2, $3)`,
				outputId,
				tokenId,
				int64(asset.Amount),
			)
		}
	}
	if batch.Len() > 0 {
		if err := dbTx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("failed to insert token transfers: %w", err)
		}
	}
	if err := dbTx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return txId, nil
}

// upsertAddresses reads the existing rows, inserts only the missing ones and
// returns the union. Two round-trips regardless of set size; a third read
// happens only when a concurrent writer won a unique-key race.
func upsertAddresses(
	ctx context.Context,
	q querier,
	addresses map[string]struct{},
) (map[string]int64, error) {
	payloads := make([]string, 0, len(addresses))
	for addr := range addresses {
		payloads = append(payloads, addr)
	}
	found := make(map[string]int64, len(payloads))
	if err := selectAddresses(ctx, q, payloads, found); err != nil {
		return nil, err
	}
	missing := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		if _, ok := found[payload]; !ok {
			missing = append(missing, payload)
		}
	}
	if len(missing) == 0 {
		return found, nil
	}
	rows, err := q.Query(
		ctx,
		`INSERT INTO address (payload)
		 SELECT unnest($1::text[])
		 ON CONFLICT (payload) DO NOTHING
		 RETURNING id, payload`,
		missing,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert addresses: %w", err)
	}
	if err := scanAddressRows(rows, found); err != nil {
		return nil, err
	}
	// Unique-key collisions don't return rows; re-read those
	var lost []string
	for _, payload := range missing {
		if _, ok := found[payload]; !ok {
			lost = append(lost, payload)
		}
	}
	if len(lost) > 0 {
		if err := selectAddresses(ctx, q, lost, found); err != nil {
			return nil, err
		}
	}
	return found, nil
}

func selectAddresses(
	ctx context.Context,
	q querier,
	payloads []string,
	into map[string]int64,
) error {
	rows, err := q.Query(
		ctx,
		`SELECT id, payload FROM address WHERE payload = ANY($1)`,
		payloads,
	)
	if err != nil {
		return fmt.Errorf("failed to select addresses: %w", err)
	}
	return scanAddressRows(rows, into)
}

func scanAddressRows(rows pgx.Rows, into map[string]int64) error {
	defer rows.Close()
	for rows.Next() {
		var id int64
		var payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("failed to scan address row: %w", err)
		}
		into[payload] = id
	}
	return rows.Err()
}

// upsertTokens follows the same policy as upsertAddresses, with the
// composite (policy_id, name) identity
func upsertTokens(
	ctx context.Context,
	q querier,
	tokens map[common.Asset]struct{},
) (map[common.Asset]int64, error) {
	policies := make([][]byte, 0, len(tokens))
	names := make([][]byte, 0, len(tokens))
	order := make([]common.Asset, 0, len(tokens))
	for token := range tokens {
		policy, err := hex.DecodeString(token.PolicyId)
		if err != nil {
			return nil, fmt.Errorf("invalid token policy id: %w", err)
		}
		name, err := hex.DecodeString(token.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid token name: %w", err)
		}
		policies = append(policies, policy)
		names = append(names, name)
		order = append(order, token)
	}
	found := make(map[common.Asset]int64, len(order))
	if err := selectTokens(ctx, q, policies, names, found); err != nil {
		return nil, err
	}
	var missingPolicies, missingNames [][]byte
	var missing []common.Asset
	for i, token := range order {
		if _, ok := found[token]; !ok {
			missingPolicies = append(missingPolicies, policies[i])
			missingNames = append(missingNames, names[i])
			missing = append(missing, token)
		}
	}
	if len(missing) == 0 {
		return found, nil
	}
	rows, err := q.Query(
		ctx,
		`INSERT INTO token (policy_id, name)
		 SELECT * FROM unnest($1::bytea[], $2::bytea[])
		 ON CONFLICT (policy_id, name) DO NOTHING
		 RETURNING id, policy_id, name`,
		missingPolicies,
		missingNames,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert tokens: %w", err)
	}
	if err := scanTokenRows(rows, found); err != nil {
		return nil, err
	}
	var lostPolicies, lostNames [][]byte
	for i, token := range missing {
		if _, ok := found[token]; !ok {
			lostPolicies = append(lostPolicies, missingPolicies[i])
			lostNames = append(lostNames, missingNames[i])
		}
	}
	if len(lostPolicies) > 0 {
		if err := selectTokens(ctx, q, lostPolicies, lostNames, found); err != nil {
			return nil, err
		}
	}
	return found, nil
}

func selectTokens(
	ctx context.Context,
	q querier,
	policies [][]byte,
	names [][]byte,
	into map[common.Asset]int64,
) error {
	rows, err := q.Query(
		ctx,
		`SELECT id, policy_id, name FROM token
		 WHERE (policy_id, name) IN (
		     SELECT * FROM unnest($1::bytea[], $2::bytea[])
		 )`,
		policies,
		names,
	)
	if err != nil {
		return fmt.Errorf("failed to select tokens: %w", err)
	}
	return scanTokenRows(rows, into)
}

func scanTokenRows(rows pgx.Rows, into map[common.Asset]int64) error {
	defer rows.Close()
	for rows.Next() {
		var id int64
		var policy, name []byte
		if err := rows.Scan(&id, &policy, &name); err != nil {
			return fmt.Errorf("failed to scan token row: %w", err)
		}
		into[common.Asset{
			PolicyId: hex.EncodeToString(policy),
			Name:     hex.EncodeToString(name),
		}] = id
	}
	return rows.Err()
}

// InsertPriceUpdate appends a pool mean-value observation
func (s *Store) InsertPriceUpdate(
	ctx context.Context,
	txId int64,
	scriptHash []byte,
	token1Id int64,
	amount1 int64,
	token2Id int64,
	amount2 int64,
) error {
	if _, err := s.pool.Exec(
		ctx,
		`INSERT INTO price_update (tx_id, script_hash, token1_id, token2_id, amount1, amount2)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		txId,
		scriptHash,
		token1Id,
		token2Id,
		amount1,
		amount2,
	); err != nil {
		return fmt.Errorf("failed to insert price update: %w", err)
	}
	return nil
}

// InsertSwap appends an executed swap
func (s *Store) InsertSwap(
	ctx context.Context,
	txId int64,
	scriptHash []byte,
	swap common.SwapInfo,
) error {
	if _, err := s.pool.Exec(
		ctx,
		`INSERT INTO swap (tx_id, script_hash, token1_id, token2_id, amount1, amount2, direction)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		txId,
		scriptHash,
		swap.Asset1,
		swap.Asset2,
		swap.Amount1,
		swap.Amount2,
		swap.Direction == "Buy",
	); err != nil {
		return fmt.Errorf("failed to insert swap: %w", err)
	}
	return nil
}

// GetTokenId returns the id of the token, inserting it lazily when absent
func (s *Store) GetTokenId(
	ctx context.Context,
	asset common.Asset,
) (int64, error) {
	policy, err := hex.DecodeString(asset.PolicyId)
	if err != nil {
		return 0, fmt.Errorf("invalid token policy id: %w", err)
	}
	name, err := hex.DecodeString(asset.Name)
	if err != nil {
		return 0, fmt.Errorf("invalid token name: %w", err)
	}
	var id int64
	err = s.pool.QueryRow(
		ctx,
		`SELECT id FROM token WHERE policy_id = $1 AND name = $2`,
		policy,
		name,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up token: %w", err)
	}
	err = s.pool.QueryRow(
		ctx,
		`INSERT INTO token (policy_id, name) VALUES ($1, $2)
		 ON CONFLICT (policy_id, name) DO NOTHING
		 RETURNING id`,
		policy,
		name,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to insert token: %w", err)
	}
	// A concurrent writer inserted it between our two statements
	err = s.pool.QueryRow(
		ctx,
		`SELECT id FROM token WHERE policy_id = $1 AND name = $2`,
		policy,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to re-read token: %w", err)
	}
	return id, nil
}
