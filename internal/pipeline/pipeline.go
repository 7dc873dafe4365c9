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

// Package pipeline is the single consumer of the follower event stream. It
// keeps the store consistent with the chain tip across rollbacks, runs the
// DEX interpreters over every block, and feeds the broadcast hub.
package pipeline

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/blinklabs-io/wtp/internal/address"
	"github.com/blinklabs-io/wtp/internal/common"
	"github.com/blinklabs-io/wtp/internal/config"
	"github.com/blinklabs-io/wtp/internal/cursor"
	"github.com/blinklabs-io/wtp/internal/dex"
	"github.com/blinklabs-io/wtp/internal/follower"
	"github.com/blinklabs-io/wtp/internal/hub"
	"github.com/blinklabs-io/wtp/internal/logging"
)

// Store is the persistence surface the pipeline drives
type Store interface {
	dex.UtxoSource
	InsertBlock(ctx context.Context, block *follower.BlockRecord) (int64, error)
	RollbackToSlot(ctx context.Context, slot uint64) error
	InsertTransaction(
		ctx context.Context,
		tx *follower.TransactionRecord,
		blockId int64,
	) (int64, error)
	InsertPriceUpdate(
		ctx context.Context,
		txId int64,
		scriptHash []byte,
		token1Id int64,
		amount1 int64,
		token2Id int64,
		amount2 int64,
	) error
	InsertSwap(
		ctx context.Context,
		txId int64,
		scriptHash []byte,
		swap common.SwapInfo,
	) error
	GetTokenId(ctx context.Context, asset common.Asset) (int64, error)
}

// watchedPool is a pool config with its credential hashes pre-decoded
type watchedPool struct {
	config      config.PoolConfig
	scriptHash  []byte
	requestHash []byte
	vestingHash []byte
}

type Pipeline struct {
	store      Store
	hub        *hub.Hub
	pools      []watchedPool
	persistent bool
	cursor     *cursor.Store
}

type PipelineOptionFunc func(*Pipeline)

// WithCursor records the last processed chain point after every block
func WithCursor(c *cursor.Store) PipelineOptionFunc {
	return func(p *Pipeline) {
		p.cursor = c
	}
}

// New creates a pipeline over the enabled pools. Pool hashes are known to be
// valid hex: config loading rejects anything else.
func New(
	store Store,
	h *hub.Hub,
	pools []config.PoolConfig,
	persistent bool,
	opts ...PipelineOptionFunc,
) *Pipeline {
	p := &Pipeline{
		store:      store,
		hub:        h,
		persistent: persistent,
	}
	for _, pool := range pools {
		if !pool.Enable {
			continue
		}
		scriptHash, _ := hex.DecodeString(pool.ScriptHash)
		requestHash, _ := hex.DecodeString(pool.RequestHash)
		vestingHash, _ := hex.DecodeString(pool.VestingHash)
		p.pools = append(p.pools, watchedPool{
			config:      pool,
			scriptHash:  scriptHash,
			requestHash: requestHash,
			vestingHash: vestingHash,
		})
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes events until the channel closes, the context is canceled or
// the store fails. Events are applied strictly in arrival order.
func (p *Pipeline) Run(
	ctx context.Context,
	events <-chan follower.Event,
) error {
	logger := logging.GetLogger()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream closed")
			}
			switch evt.Variant {
			case follower.EventVariantRollBack:
				if evt.Rollback == nil {
					continue
				}
				logger.Debug(
					"rollback",
					"slot", evt.Rollback.BlockSlot,
					"hash", evt.Rollback.BlockHash,
				)
				if p.persistent {
					if err := p.store.RollbackToSlot(
						ctx,
						evt.Rollback.BlockSlot,
					); err != nil {
						return err
					}
				}
			case follower.EventVariantBlock:
				if evt.Block == nil {
					continue
				}
				if err := p.handleBlock(ctx, evt.Block); err != nil {
					return err
				}
			default:
				logger.Info("ignoring event", "variant", evt.Variant)
			}
		}
	}
}

func (p *Pipeline) handleBlock(
	ctx context.Context,
	block *follower.BlockRecord,
) error {
	logger := logging.GetLogger()
	logger.Debug("block", "slot", block.Slot, "hash", block.Hash)
	var blockId int64
	if p.persistent {
		var err error
		blockId, err = p.store.InsertBlock(ctx, block)
		if err != nil {
			return err
		}
	}
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		// The transaction is persisted when any of its outputs touches a
		// watched credential or address
		var txId int64
		var havePersisted bool
		if p.persistent && p.isWatched(tx) {
			var err error
			txId, err = p.store.InsertTransaction(ctx, tx, blockId)
			if err != nil {
				return err
			}
			havePersisted = true
		}
		for j := range p.pools {
			if err := p.handlePool(
				ctx,
				&p.pools[j],
				tx,
				txId,
				havePersisted,
			); err != nil {
				return err
			}
		}
	}
	if p.cursor != nil {
		if err := p.cursor.Update(block.Slot, block.Hash); err != nil {
			logger.Error("failed to update cursor", "error", err)
		}
	}
	return nil
}

// handlePool runs one pool's interpreter over one transaction. Interpreter
// failures are contained to the transaction; store failures propagate.
func (p *Pipeline) handlePool(
	ctx context.Context,
	pool *watchedPool,
	tx *follower.TransactionRecord,
	txId int64,
	havePersisted bool,
) error {
	logger := logging.GetLogger()
	asset1, asset2, err := dex.MeanValue(&pool.config, tx)
	if err != nil {
		logger.Info(
			"failed to interpret pool state",
			"tx", tx.Hash,
			"pool", pool.config.ScriptHash,
			"error", err,
		)
		return nil
	}
	if asset1 == nil || asset2 == nil {
		return nil
	}
	asset1Id, err := p.store.GetTokenId(ctx, asset1.Asset)
	if err != nil {
		return err
	}
	asset2Id, err := p.store.GetTokenId(ctx, asset2.Asset)
	if err != nil {
		return err
	}
	p.hub.Publish(hub.Message{
		Operation: hub.OperationMeanValue,
		Data: common.ExchangeRate{
			ScriptHash: pool.config.ScriptHash,
			Asset1:     asset1Id,
			Asset2:     asset2Id,
			Rate:       float64(asset1.Amount) / float64(asset2.Amount),
		},
	})
	if havePersisted {
		if err := p.store.InsertPriceUpdate(
			ctx,
			txId,
			pool.scriptHash,
			asset1Id,
			int64(asset1.Amount),
			asset2Id,
			int64(asset2.Amount),
		); err != nil {
			return err
		}
	}
	swaps, err := dex.Swaps(ctx, &pool.config, p.store, tx)
	if err != nil {
		logger.Info(
			"failed to interpret swaps",
			"tx", tx.Hash,
			"pool", pool.config.ScriptHash,
			"error", err,
		)
		return nil
	}
	for _, swap := range swaps {
		swapInfo := common.SwapInfo{
			Asset1:    asset1Id,
			Amount1:   int64(swap.First.Amount),
			Asset2:    asset2Id,
			Amount2:   int64(swap.Second.Amount),
			Direction: common.DirectionString(swap.Direction),
		}
		if havePersisted {
			if err := p.store.InsertSwap(
				ctx,
				txId,
				pool.scriptHash,
				swapInfo,
			); err != nil {
				return err
			}
		}
		p.hub.Publish(hub.Message{
			Operation: hub.OperationSwap,
			Data:      swapInfo,
		})
	}
	if len(swaps) > 0 {
		logger.Info("swaps", "tx", tx.Hash, "count", len(swaps))
	}
	return nil
}

// isWatched reports whether any output touches a watched pool credential or
// address
func (p *Pipeline) isWatched(tx *follower.TransactionRecord) bool {
	for i := range tx.Outputs {
		output := &tx.Outputs[i]
		hash := address.PaymentHash(output.Address)
		for j := range p.pools {
			pool := &p.pools[j]
			if len(hash) > 0 &&
				(bytes.Equal(pool.scriptHash, hash) ||
					bytes.Equal(pool.requestHash, hash) ||
					bytes.Equal(pool.vestingHash, hash)) {
				return true
			}
			if output.Address == pool.config.Address {
				return true
			}
		}
	}
	return false
}
