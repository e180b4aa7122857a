package integration

import (
	"time"

	"github.com/orderhub/backend/internal/domain/integration"
)

// GapReport is the result of a gap scan
type GapReport struct {
	Days        int               `json:"days"`
	From        string            `json:"from"`
	To          string            `json:"to"`
	Gaps        []integration.Gap `json:"gaps"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// GapQuery represents query options for the gap scan
type GapQuery struct {
	Days int `form:"days" binding:"omitempty,min=1"`
}
