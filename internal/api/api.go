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

// Package api serves the REST queries over indexed history and the
// WebSocket stream of live updates.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/blinklabs-io/wtp/internal/common"
	"github.com/blinklabs-io/wtp/internal/config"
	"github.com/blinklabs-io/wtp/internal/hub"
	"github.com/blinklabs-io/wtp/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const defaultHistoryCount = 10

// Store is the read surface the handlers query
type Store interface {
	GetLatestPrices(ctx context.Context) ([]common.LatestExchangeRate, error)
	GetAssets(ctx context.Context) (map[int64]common.Asset, error)
	GetTokenPriceHistory(
		ctx context.Context,
		assetId1 int64,
		assetId2 int64,
		count uint64,
	) ([]common.ExchangeHistory, error)
	GetSwapHistory(
		ctx context.Context,
		assetId1 int64,
		assetId2 int64,
		count uint64,
	) ([]common.SwapHistory, error)
}

type Api struct {
	store    Store
	hub      *hub.Hub
	router   *gin.Engine
	upgrader websocket.Upgrader
}

func New(store Store, h *hub.Hub) *Api {
	a := &Api{
		store: store,
		hub:   h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", a.handleHealth)
	router.GET("/exchange_rates", a.handleExchangeRates)
	router.GET("/assets", a.handleAssets)
	router.GET("/mean_history/:asset1/:asset2", a.handleMeanHistory)
	router.GET("/asset_swap/:asset1/:asset2", a.handleAssetSwap)
	router.GET("/socket", a.handleSocket)
	a.router = router
	return a
}

// Handler exposes the route tree
func (a *Api) Handler() http.Handler {
	return a.router
}

// Start runs the HTTP server. It blocks until the listener fails.
func (a *Api) Start() error {
	cfg := config.GetConfig()
	logger := logging.GetLogger()
	addr := fmt.Sprintf("%s:%d", cfg.Api.ListenAddress, cfg.Api.ListenPort)
	logger.Info("starting API server", "addr", addr)
	return a.router.Run(addr)
}

func (a *Api) handleHealth(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", []byte("true"))
}

func (a *Api) handleExchangeRates(c *gin.Context) {
	rates, err := a.store.GetLatestPrices(c.Request.Context())
	if err != nil {
		a.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rates)
}

func (a *Api) handleAssets(c *gin.Context) {
	assets, err := a.store.GetAssets(c.Request.Context())
	if err != nil {
		a.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, assets)
}

func (a *Api) handleMeanHistory(c *gin.Context) {
	assetId1, assetId2, count, ok := historyParams(c)
	if !ok {
		return
	}
	history, err := a.store.GetTokenPriceHistory(
		c.Request.Context(),
		assetId1,
		assetId2,
		count,
	)
	if err != nil {
		a.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (a *Api) handleAssetSwap(c *gin.Context) {
	assetId1, assetId2, count, ok := historyParams(c)
	if !ok {
		return
	}
	history, err := a.store.GetSwapHistory(
		c.Request.Context(),
		assetId1,
		assetId2,
		count,
	)
	if err != nil {
		a.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// handleSocket upgrades the connection and forwards hub frames until the
// peer goes away. Incoming payloads are read only to notice the close.
func (a *Api) handleSocket(c *gin.Context) {
	logger := logging.GetLogger()
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the 400 response
		logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	sub := a.hub.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		sub.Close()
		_ = conn.Close()
	}()
	for {
		select {
		case <-done:
			return
		case frame := <-sub.C():
			if err := conn.WriteMessage(
				websocket.TextMessage,
				frame,
			); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func (a *Api) storeError(c *gin.Context, err error) {
	logging.GetLogger().Error("store query failed", "error", err)
	c.JSON(
		http.StatusInternalServerError,
		gin.H{"error": "internal server error"},
	)
}

// historyParams parses the asset-pair path and optional count query. A false
// result means the 400 response has been written.
func historyParams(c *gin.Context) (int64, int64, uint64, bool) {
	assetId1, err := strconv.ParseInt(c.Param("asset1"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return 0, 0, 0, false
	}
	assetId2, err := strconv.ParseInt(c.Param("asset2"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return 0, 0, 0, false
	}
	count := uint64(defaultHistoryCount)
	if raw, ok := c.GetQuery("count"); ok {
		count, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid count"})
			return 0, 0, 0, false
		}
	}
	return assetId1, assetId2, count, true
}
