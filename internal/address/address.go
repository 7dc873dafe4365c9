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

package address

import (
	"strings"

	"github.com/blinklabs-io/gouroboros/ledger"
)

const mainnetNetworkId = 1

// PaymentHash returns the payment credential hash for a Shelley-era payment
// address, or nil for stake addresses, Byron addresses, and anything that
// fails to parse. Malformed input is not an error: the chain contains
// addresses in every historical format and callers only care about the
// Shelley ones.
func PaymentHash(addr string) []byte {
	// Stake addresses carry a credential too, but it's not a payment
	// credential. Byron addresses are base58 and fail the bech32 parse below.
	if !strings.HasPrefix(addr, "addr") {
		return nil
	}
	parsed, err := ledger.NewAddress(addr)
	if err != nil {
		return nil
	}
	hash := parsed.PaymentKeyHash()
	return hash.Bytes()
}

// FromCredentials rebuilds a mainnet key/key base address (header 0x01) from
// a payment and staking credential hash. DEX order datums embed beneficiary
// addresses as bare credential pairs in this form.
func FromCredentials(payment []byte, stake []byte) (string, error) {
	addr, err := ledger.NewAddressFromParts(
		ledger.AddressTypeKeyKey,
		mainnetNetworkId,
		payment,
		stake,
	)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}
