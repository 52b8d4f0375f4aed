package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/config"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the public part of the configuration
type ConfigResponse struct {
	Threshold           float64 `json:"threshold"`
	EmbeddingDim        int     `json:"embedding_dim"`
	CooldownSeconds     float64 `json:"cooldown_seconds"`
	Timezone            string  `json:"timezone"`
	StorageBackend      string  `json:"storage_backend"`
	HNSWEnabled         bool    `json:"hnsw_enabled"`
	ExtractorConfigured bool    `json:"extractor_configured"`
	SharedCooldown      bool    `json:"shared_cooldown"`
}

// Get returns the matching configuration. Connection strings are never exposed.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	response := ConfigResponse{
		Threshold:           h.config.Matching.Threshold,
		EmbeddingDim:        h.config.Matching.EmbeddingDim,
		CooldownSeconds:     h.config.Attendance.Cooldown.Seconds(),
		Timezone:            h.config.Attendance.Location().String(),
		StorageBackend:      h.config.Storage.Backend,
		HNSWEnabled:         h.config.Matching.HNSWEnabled,
		ExtractorConfigured: h.config.Embedding.URL != "",
		SharedCooldown:      h.config.Redis.URL != "",
	}

	respondJSON(w, http.StatusOK, response)
}
