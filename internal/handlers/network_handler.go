package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nanorem/backend/internal/services/network"
)

// NetworkHandler answers structure queries over the sponsorship tree
type NetworkHandler struct {
	networkSvc *network.NetworkService
}

// NewNetworkHandler creates a new network handler
func NewNetworkHandler(networkSvc *network.NetworkService) *NetworkHandler {
	return &NetworkHandler{networkSvc: networkSvc}
}

// Tree returns a partner's subtree. The depth query parameter bounds the
// tree; omitted or -1 means unlimited.
func (h *NetworkHandler) Tree(c *gin.Context) {
	partnerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	depth := -1
	if raw := c.Query("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid depth"})
			return
		}
		depth = parsed
	}

	snapshot, err := h.networkSvc.Snapshot(nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load network"})
		return
	}

	tree, found := snapshot.Tree(partnerID, depth)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "partner not found"})
		return
	}
	c.JSON(http.StatusOK, tree)
}

// Downline returns the full downline of a partner with summary stats
func (h *NetworkHandler) Downline(c *gin.Context) {
	partnerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	snapshot, err := h.networkSvc.Snapshot(nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load network"})
		return
	}

	downline := snapshot.Downline(partnerID)
	c.JSON(http.StatusOK, gin.H{
		"partner_id": partnerID,
		"size":       snapshot.NetworkSize(partnerID),
		"depth":      snapshot.NetworkDepth(partnerID),
		"downline":   downline,
	})
}

// Level returns the partners sitting exactly n levels below a partner
func (h *NetworkHandler) Level(c *gin.Context) {
	partnerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	level, err := strconv.Atoi(c.Param("level"))
	if err != nil || level < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid level"})
		return
	}

	snapshot, err := h.networkSvc.Snapshot(nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load network"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"partner_id": partnerID,
		"level":      level,
		"partners":   snapshot.LevelPartners(partnerID, level),
	})
}

// Ancestors returns the upline chain of a partner, nearest first
func (h *NetworkHandler) Ancestors(c *gin.Context) {
	partnerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	maxDepth := -1
	if raw := c.Query("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid depth"})
			return
		}
		maxDepth = parsed
	}

	ancestors, err := h.networkSvc.AncestorsOf(partnerID, maxDepth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load ancestors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"partner_id": partnerID, "ancestors": ancestors})
}
