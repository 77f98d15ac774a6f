package handler

import (
	"encoding/json"
	"net/http"
)

// HealthStatus はヘルスチェックで返す内容です。
type HealthStatus struct {
	Role         string `json:"role"`
	Participants int    `json:"participants"`
}

// HealthReporter は現在のセッション状態を返します。
type HealthReporter interface {
	Health() HealthStatus
}

func NewHealthHandler(reporter HealthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(reporter.Health())
	}
}
