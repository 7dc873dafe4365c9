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

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blinklabs-io/wtp/internal/api"
	"github.com/blinklabs-io/wtp/internal/common"
	"github.com/blinklabs-io/wtp/internal/hub"

	"github.com/gorilla/websocket"
)

// fakeStore serves canned query results
type fakeStore struct {
	failing      bool
	history      []common.ExchangeHistory
	historyCount uint64
	swapHistory  []common.SwapHistory
}

var errBackend = errors.New("backend down")

func (f *fakeStore) GetLatestPrices(
	ctx context.Context,
) ([]common.LatestExchangeRate, error) {
	if f.failing {
		return nil, errBackend
	}
	return []common.LatestExchangeRate{
		{
			ScriptHash: "e6c9",
			Asset1: common.AssetAmount{
				Asset:  common.Asset{},
				Amount: 3,
			},
			Asset2: common.AssetAmount{
				Asset:  common.Asset{PolicyId: "aa", Name: "bb"},
				Amount: 997,
			},
			Rate: 3.0 / 997.0,
		},
	}, nil
}

func (f *fakeStore) GetAssets(
	ctx context.Context,
) (map[int64]common.Asset, error) {
	if f.failing {
		return nil, errBackend
	}
	return map[int64]common.Asset{
		1: {},
		2: {PolicyId: "aa", Name: "bb"},
	}, nil
}

func (f *fakeStore) GetTokenPriceHistory(
	ctx context.Context,
	assetId1 int64,
	assetId2 int64,
	count uint64,
) ([]common.ExchangeHistory, error) {
	if f.failing {
		return nil, errBackend
	}
	f.historyCount = count
	return f.history, nil
}

func (f *fakeStore) GetSwapHistory(
	ctx context.Context,
	assetId1 int64,
	assetId2 int64,
	count uint64,
) ([]common.SwapHistory, error) {
	if f.failing {
		return nil, errBackend
	}
	f.historyCount = count
	return f.swapHistory, nil
}

func testServer(t *testing.T, store *fakeStore, h *hub.Hub) *httptest.Server {
	t.Helper()
	if h == nil {
		h = hub.New()
	}
	server := httptest.NewServer(api.New(store, h).Handler())
	t.Cleanup(server.Close)
	return server
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %s", err)
	}
	defer resp.Body.Close()
	var body strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		body.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return resp.StatusCode, []byte(body.String())
}

func TestHealth(t *testing.T) {
	server := testServer(t, &fakeStore{}, nil)
	status, body := get(t, server.URL+"/health")
	if status != http.StatusOK {
		t.Errorf("expected 200, got %d", status)
	}
	if string(body) != "true" {
		t.Errorf("expected true, got %s", body)
	}
}

func TestExchangeRates(t *testing.T) {
	server := testServer(t, &fakeStore{}, nil)
	status, body := get(t, server.URL+"/exchange_rates")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	var rates []common.LatestExchangeRate
	if err := json.Unmarshal(body, &rates); err != nil {
		t.Fatalf("invalid JSON: %s", err)
	}
	if len(rates) != 1 || rates[0].ScriptHash != "e6c9" {
		t.Errorf("unexpected rates: %v", rates)
	}
}

func TestExchangeRatesStoreError(t *testing.T) {
	server := testServer(t, &fakeStore{failing: true}, nil)
	status, _ := get(t, server.URL+"/exchange_rates")
	if status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", status)
	}
}

func TestMeanHistoryDefaultsCount(t *testing.T) {
	store := &fakeStore{
		history: []common.ExchangeHistory{
			{Amount1: 3, Amount2: 997, Rate: 3.0 / 997.0, TxId: 109},
		},
	}
	server := testServer(t, store, nil)
	status, body := get(t, server.URL+"/mean_history/7/9")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if store.historyCount != 10 {
		t.Errorf("expected default count 10, got %d", store.historyCount)
	}
	var history []common.ExchangeHistory
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatalf("invalid JSON: %s", err)
	}
	if len(history) != 1 || history[0].TxId != 109 {
		t.Errorf("unexpected history: %v", history)
	}
}

func TestMeanHistoryExplicitCount(t *testing.T) {
	store := &fakeStore{}
	server := testServer(t, store, nil)
	status, _ := get(t, server.URL+"/mean_history/7/9?count=3")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if store.historyCount != 3 {
		t.Errorf("expected count 3, got %d", store.historyCount)
	}
}

func TestHistoryBadParams(t *testing.T) {
	server := testServer(t, &fakeStore{}, nil)
	for _, path := range []string{
		"/mean_history/x/9",
		"/mean_history/7/y",
		"/mean_history/7/9?count=many",
		"/asset_swap/x/9",
		"/asset_swap/7/9?count=-1",
	} {
		status, _ := get(t, server.URL+path)
		if status != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, status)
		}
	}
}

func TestAssetSwapDirectionStrings(t *testing.T) {
	store := &fakeStore{
		swapHistory: []common.SwapHistory{
			{Amount1: 1, Amount2: 2, TxId: 11, Direction: "Buy"},
			{Amount1: 3, Amount2: 4, TxId: 10, Direction: "Sell"},
		},
	}
	server := testServer(t, store, nil)
	status, body := get(t, server.URL+"/asset_swap/7/9")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	var history []common.SwapHistory
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatalf("invalid JSON: %s", err)
	}
	if len(history) != 2 || history[0].Direction != "Buy" ||
		history[1].Direction != "Sell" {
		t.Errorf("unexpected history: %v", history)
	}
}

func TestSocketForwardsFrames(t *testing.T) {
	h := hub.New()
	server := testServer(t, &fakeStore{}, h)
	wsUrl := "ws" + strings.TrimPrefix(server.URL, "http") + "/socket"
	conn, resp, err := websocket.DefaultDialer.Dial(wsUrl, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %s", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}
	// Give the server goroutine a moment to register the subscriber
	deadline := time.Now().Add(time.Second)
	for h.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	h.Publish(hub.Message{
		Operation: hub.OperationMeanValue,
		Data:      common.ExchangeRate{ScriptHash: "e6c9", Rate: 0.5},
	})
	h.Publish(hub.Message{
		Operation: hub.OperationSwap,
		Data:      common.SwapInfo{Direction: "Buy"},
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, wantOp := range []string{
		hub.OperationMeanValue,
		hub.OperationSwap,
	} {
		var frame struct {
			Operation string `json:"operation"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("failed to read frame: %s", err)
		}
		if frame.Operation != wantOp {
			t.Errorf("expected %s, got %s", wantOp, frame.Operation)
		}
	}
}

func TestSocketRejectsPlainGet(t *testing.T) {
	server := testServer(t, &fakeStore{}, nil)
	status, _ := get(t, server.URL+"/socket")
	if status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", status)
	}
}
