// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package management exposes the local HTTP API for listing accounts,
// capturing credentials, and switching identities. It answers loopback
// requests only; everything it moves is secret material.
package management

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchAccount/internal/creds"
	"github.com/traylinx/switchAccount/internal/extract"
	"github.com/traylinx/switchAccount/internal/registry"
	"github.com/traylinx/switchAccount/internal/snapshot"
	"github.com/traylinx/switchAccount/internal/util"
)

// Handler serves the management API.
type Handler struct {
	creds     *creds.Service
	snapshots *snapshot.Manager
	accounts  *registry.Registry
}

// NewHandler wires the management API over the credential service,
// snapshot manager, and account registry.
func NewHandler(c *creds.Service, s *snapshot.Manager, r *registry.Registry) *Handler {
	return &Handler{creds: c, snapshots: s, accounts: r}
}

// Register installs the management routes on engine.
func (h *Handler) Register(engine *gin.Engine) {
	v1 := engine.Group("/v1", localhostOnly())
	v1.GET("/accounts", h.ListAccounts)
	v1.POST("/accounts/capture", h.CaptureAccount)
	v1.GET("/accounts/:email/token", h.GetAccountToken)
	v1.DELETE("/accounts/:email", h.DeleteAccount)
	v1.GET("/snapshots", h.ListSnapshots)
	v1.POST("/snapshots", h.SaveSnapshot)
	v1.POST("/snapshots/:email/switch", h.SwitchAccount)
	v1.DELETE("/snapshots/:email", h.DeleteSnapshot)
}

// localhostOnly rejects anything that is not a direct loopback request.
func localhostOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !util.IsLocalhostDirect(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "management API is local-only"})
			return
		}
		c.Next()
	}
}

// accountView is the list representation of an account: registry entry
// plus lifecycle state, never the tokens themselves.
type accountView struct {
	Email              string `json:"email"`
	Active             bool   `json:"active"`
	Note               string `json:"note,omitempty"`
	State              string `json:"state"`
	ValidOrRecoverable bool   `json:"validOrRecoverable"`
}

// ListAccounts returns registered accounts with their credential states.
func (h *Handler) ListAccounts(c *gin.Context) {
	entries, err := h.accounts.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]accountView, 0, len(entries))
	for _, e := range entries {
		views = append(views, accountView{
			Email:              e.Email,
			Active:             e.Active,
			Note:               e.Note,
			State:              string(h.creds.StateOf(e.Email)),
			ValidOrRecoverable: h.creds.HasValidOrRecoverable(e.Email),
		})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": views})
}

// CaptureAccount extracts the host's active identity and persists it.
// The optional request email is advisory; the extracted email wins.
func (h *Handler) CaptureAccount(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	_ = c.ShouldBindJSON(&req)

	acc, err := h.creds.Capture(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, extract.ErrNoCredentials) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no credentials found in host state store"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.accounts.Add(acc.Email, ""); err != nil {
		log.WithError(err).Warn("captured credentials but failed to register account")
	}
	c.JSON(http.StatusOK, gin.H{"email": acc.Email, "expiresAt": acc.ExpiresAt})
}

// GetAccountToken serves the best available access token for an account.
func (h *Handler) GetAccountToken(c *gin.Context) {
	email := c.Param("email")
	token, err := h.creds.GetToken(c.Request.Context(), email)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": email, "accessToken": token})
}

// DeleteAccount removes the stored credential and registry entry.
func (h *Handler) DeleteAccount(c *gin.Context) {
	email := c.Param("email")
	if err := h.creds.Delete(email); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.accounts.Remove(email); err != nil && !errors.Is(err, registry.ErrNotRegistered) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ListSnapshots enumerates saved identity snapshots. The blob itself is
// not returned.
func (h *Handler) ListSnapshots(c *gin.Context) {
	snaps, err := h.snapshots.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	type view struct {
		Email   string `json:"email"`
		SavedAt string `json:"savedAt"`
	}
	views := make([]view, 0, len(snaps))
	for _, s := range snaps {
		views = append(views, view{Email: s.Email, SavedAt: s.SavedAt.Format("2006-01-02T15:04:05Z07:00")})
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": views})
}

// SaveSnapshot captures the host's current identity value.
func (h *Handler) SaveSnapshot(c *gin.Context) {
	snap, err := h.snapshots.Save(c.Request.Context())
	if err != nil {
		if errors.Is(err, snapshot.ErrNothingToSave) {
			c.JSON(http.StatusNotFound, gin.H{"error": "host has no current identity to snapshot"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": snap.Email, "savedAt": snap.SavedAt})
}

// SwitchAccount restores the saved identity for an email into the host.
func (h *Handler) SwitchAccount(c *gin.Context) {
	email := c.Param("email")
	err := h.snapshots.SwitchTo(c.Request.Context(), email)
	switch {
	case errors.Is(err, snapshot.ErrSnapshotNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, snapshot.ErrStoreWrite):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		if err := h.accounts.SetActive(email); err != nil && !errors.Is(err, registry.ErrNotRegistered) {
			log.WithError(err).Warn("switched identity but failed to update registry")
		}
		c.JSON(http.StatusOK, gin.H{"email": email, "switched": true})
	}
}

// DeleteSnapshot removes a saved snapshot.
func (h *Handler) DeleteSnapshot(c *gin.Context) {
	if err := h.snapshots.Delete(c.Param("email")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
