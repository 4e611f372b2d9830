// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/selectorengine/core/enginetypes"
	"github.com/selectorengine/core/orchestrator"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server exposing retrieve and report_outcome (spec §6.2)",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8090, "port to listen on")
}

// retrieveHandler and reportOutcomeHandler follow services/trace/routes.go's
// route-registration shape: a gin.HandlerFunc closing over the shared
// Orchestrator, built once at startup.
func retrieveHandler(o *orchestrator.Orchestrator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req retrieveRequestDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
			return
		}

		queryID := uuid.New().String()
		ctx := c.Request.Context()
		result, err := o.Retrieve(ctx, req.Intent.toDomain(), req.Snapshot.toDomain())
		if err != nil {
			kind, isFatal := enginetypes.KindOf(err)
			if isFatal {
				logger.Warn("retrieve rejected", slog.String("query_id", queryID), slog.String("kind", string(kind)), slog.String("error", err.Error()))
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": string(kind), "query_id": queryID})
				return
			}
			logger.Error("retrieve failed", slog.String("query_id", queryID), slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "query_id": queryID})
			return
		}

		logger.Info("retrieve completed",
			slog.String("query_id", queryID),
			slog.String("status", string(result.Status)),
			slog.String("mode", string(result.Mode)),
		)
		resp := retrieveResponseFrom(result)
		c.Header("X-Query-ID", queryID)
		c.JSON(http.StatusOK, resp)
	}
}

func reportOutcomeHandler(o *orchestrator.Orchestrator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reportOutcomeRequestDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
			return
		}
		if err := o.ReportOutcome(c.Request.Context(), req.PageSignature, req.FrameHash, req.LabelKey, req.XPath, req.Success, req.Strategy); err != nil {
			logger.Error("report_outcome failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	embCache, closeCache := openCache(logger, cfg)
	defer closeCache()

	promotions, closePromotions, err := openPromotions(logger, cfg)
	if err != nil {
		return err
	}
	defer closePromotions()

	canon := newCanonicalizer(cfg)
	embedProvider := newEmbedProvider(logger)
	rerankProvider := newRerankProvider(logger)

	o := orchestrator.New(cfg, canon, embCache, promotions, embedProvider, rerankProvider, modelID, logger, nil)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("selectorengine"))

	v1 := router.Group("/v1/selector")
	v1.GET("/health", healthHandler)
	v1.POST("/retrieve", retrieveHandler(o, logger))
	v1.POST("/report_outcome", reportOutcomeHandler(o, logger))

	addr := fmt.Sprintf(":%d", servePort)
	srv := &http.Server{Addr: addr, Handler: router}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("selectorengine server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-quit:
		logger.Info("shutting down selectorengine server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}
}
