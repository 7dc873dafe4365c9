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
	"github.com/blinklabs-io/wtp/internal/dex"
	"github.com/blinklabs-io/wtp/internal/follower"
	"github.com/blinklabs-io/wtp/internal/plutus"
)

// Plutus tree builders for synthetic datums

func pInt(v int64) plutus.Data {
	return plutus.Data{Int: &v}
}

func pBytes(s string) plutus.Data {
	return plutus.Data{Bytes: &s}
}

func pConstr(tag int64, fields ...plutus.Data) plutus.Data {
	return plutus.Data{Constructor: &tag, Fields: fields}
}

func pList(items ...plutus.Data) plutus.Data {
	return plutus.Data{List: items}
}

// fakeUtxoSource hands back a fixed set of reconstructed inputs
type fakeUtxoSource struct {
	outputs []*follower.TxOutputRecord
}

func (f *fakeUtxoSource) GetUtxoInputs(
	ctx context.Context,
	inputs []follower.TxInputRecord,
) ([]*follower.TxOutputRecord, error) {
	return f.outputs, nil
}

// scriptAddress builds a base address whose payment credential is 28 bytes
// of fill, returning the address and the credential hex
func scriptAddress(t *testing.T, fill byte) (string, string) {
	t.Helper()
	payment := make([]byte, 28)
	stake := make([]byte, 28)
	for i := range payment {
		payment[i] = fill
		stake[i] = ^fill
	}
	addr, err := address.FromCredentials(payment, stake)
	if err != nil {
		t.Fatalf("failed to build address: %s", err)
	}
	return addr, hex.EncodeToString(payment)
}

func TestKindFromType(t *testing.T) {
	testDefs := []struct {
		poolType string
		want     dex.Kind
	}{
		{"WingRiders", dex.WingRidersV1},
		{"MinSwapV1", dex.MinSwapV1},
		{"SundaeSwap", dex.SundaeSwapV1},
		{"SomethingElse", dex.Inert},
		{"", dex.Inert},
	}
	for _, testDef := range testDefs {
		if got := dex.KindFromType(testDef.poolType); got != testDef.want {
			t.Errorf(
				"%q: expected kind %d, got %d",
				testDef.poolType,
				testDef.want,
				got,
			)
		}
	}
}
