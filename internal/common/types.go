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

package common

import "fmt"

// Asset identifies a Cardano native asset by hex-encoded policy ID and name.
// ADA/lovelace is represented by empty policy ID and name.
type Asset struct {
	PolicyId string `json:"policy_id"`
	Name     string `json:"name"`
}

// IsLovelace returns true if the Asset represents ADA/lovelace
func (a Asset) IsLovelace() bool {
	return a.PolicyId == "" && a.Name == ""
}

// String returns a human-readable representation of the Asset
func (a Asset) String() string {
	if a.IsLovelace() {
		return "lovelace"
	}
	return fmt.Sprintf("%s.%s", a.PolicyId, a.Name)
}

// AssetAmount represents an amount of a specific asset
type AssetAmount struct {
	Asset  Asset  `json:"asset"`
	Amount uint64 `json:"amount"`
}

// Swap represents a single executed order against a pool. Direction true
// means "Buy", false means "Sell".
type Swap struct {
	First     AssetAmount
	Second    AssetAmount
	Direction bool
}

// DirectionString maps a swap direction flag to its wire representation
func DirectionString(direction bool) string {
	if direction {
		return "Buy"
	}
	return "Sell"
}

// ExchangeRate is a pool's most recent mean value, keyed by resolved token ids
type ExchangeRate struct {
	ScriptHash string  `json:"script_hash"`
	Asset1     int64   `json:"asset1"`
	Asset2     int64   `json:"asset2"`
	Rate       float64 `json:"rate"`
}

// LatestExchangeRate is an exchange rate carrying full asset identifiers, as
// returned by the latest-prices query
type LatestExchangeRate struct {
	ScriptHash string      `json:"script_hash"`
	Asset1     AssetAmount `json:"asset1"`
	Asset2     AssetAmount `json:"asset2"`
	Rate       float64     `json:"rate"`
}

// ExchangeHistory is a single historical price observation
type ExchangeHistory struct {
	Amount1 int64   `json:"amount1"`
	Amount2 int64   `json:"amount2"`
	Rate    float64 `json:"rate"`
	TxId    int64   `json:"tx_id"`
}

// SwapInfo is a single executed swap with resolved token ids
type SwapInfo struct {
	Asset1    int64  `json:"asset1"`
	Amount1   int64  `json:"amount1"`
	Asset2    int64  `json:"asset2"`
	Amount2   int64  `json:"amount2"`
	Direction string `json:"direction"`
}

// SwapHistory is a single historical swap record
type SwapHistory struct {
	Amount1   int64  `json:"amount1"`
	Amount2   int64  `json:"amount2"`
	TxId      int64  `json:"tx_id"`
	Direction string `json:"direction"`
}
