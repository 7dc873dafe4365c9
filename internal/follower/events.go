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

package follower

import (
	"github.com/blinklabs-io/wtp/internal/plutus"
)

// Event variants delivered by the upstream follower. Anything else is
// ignorable by consumers.
const (
	EventVariantBlock       = "Block"
	EventVariantTransaction = "Transaction"
	EventVariantRollBack    = "RollBack"
)

// Event is a single entry of the ordered follower stream. Exactly one of the
// payload members matching Variant is populated.
type Event struct {
	Variant     string             `json:"variant"`
	Block       *BlockRecord       `json:"block,omitempty"`
	Transaction *TransactionRecord `json:"transaction,omitempty"`
	Rollback    *RollbackRecord    `json:"rollback,omitempty"`
}

// BlockRecord carries one block with its transactions embedded
type BlockRecord struct {
	Slot         uint64              `json:"slot"`
	Hash         string              `json:"hash"`
	Number       uint64              `json:"number"`
	Epoch        *uint64             `json:"epoch,omitempty"`
	PreviousHash string              `json:"previous_hash"`
	Transactions []TransactionRecord `json:"transactions,omitempty"`
}

// RollbackRecord announces that the chain forked away from previously
// delivered blocks; everything past the given slot must be discarded
type RollbackRecord struct {
	BlockSlot uint64 `json:"block_slot"`
	BlockHash string `json:"block_hash"`
}

// TransactionRecord carries the transaction details the interpreters consume
type TransactionRecord struct {
	Hash            string                 `json:"hash"`
	Inputs          []TxInputRecord        `json:"inputs,omitempty"`
	Outputs         []TxOutputRecord       `json:"outputs,omitempty"`
	PlutusData      []PlutusDatumRecord    `json:"plutus_data,omitempty"`
	PlutusRedeemers []PlutusRedeemerRecord `json:"plutus_redeemers,omitempty"`
}

// TxInputRecord references a UTXO being spent
type TxInputRecord struct {
	TxId  string `json:"tx_id"`
	Index uint64 `json:"index"`
}

// TxOutputRecord is a produced (or, for interpreter purposes, reconstructed)
// transaction output. Amount is the lovelace quantity; Assets carries any
// native tokens.
type TxOutputRecord struct {
	Address   string              `json:"address"`
	Amount    uint64              `json:"amount"`
	Assets    []OutputAssetRecord `json:"assets,omitempty"`
	DatumHash string              `json:"datum_hash,omitempty"`
}

// OutputAssetRecord is a native asset attached to an output, with policy and
// name hex-encoded
type OutputAssetRecord struct {
	Policy string `json:"policy"`
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

// PlutusDatumRecord is a witnessed datum with its pre-decoded data tree
type PlutusDatumRecord struct {
	DatumHash  string      `json:"datum_hash"`
	PlutusData plutus.Data `json:"plutus_data"`
}

// PlutusRedeemerRecord is a redeemer keyed by the index of the input it spends
type PlutusRedeemerRecord struct {
	InputIdx   uint64      `json:"input_idx"`
	PlutusData plutus.Data `json:"plutus_data"`
}
