package httpinterface

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/xswap-network/xswapd/internal/core/application/gateway"
	"github.com/xswap-network/xswapd/internal/core/domain"
)

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

var errorStatuses = []struct {
	err    error
	code   string
	status int
}{
	{domain.ErrValidation, "invalid_request", http.StatusBadRequest},
	{domain.ErrOrderNotFound, "not_found", http.StatusNotFound},
	{domain.ErrSwapNotFound, "not_found", http.StatusNotFound},
	{domain.ErrWebhookNotFound, "not_found", http.StatusNotFound},
	{domain.ErrBidNotFound, "not_found", http.StatusNotFound},
	{domain.ErrOrderAlreadyExists, "already_exists", http.StatusConflict},
	{domain.ErrBidRaceLost, "bid_race_lost", http.StatusConflict},
	{domain.ErrOrderNotBiddable, "order_not_biddable", http.StatusConflict},
	{domain.ErrInvalidTransition, "invalid_transition", http.StatusConflict},
	{domain.ErrOrderExpired, "order_expired", http.StatusGone},
	{gateway.ErrRateLimited, "rate_limited", http.StatusTooManyRequests},
	{gateway.ErrServiceUnavailable, "unavailable", http.StatusServiceUnavailable},
	{domain.ErrChainUnavailable, "unavailable", http.StatusServiceUnavailable},
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Code: "internal", Error: err.Error()}
	status := http.StatusInternalServerError
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			resp.Code, status = e.code, e.status
			break
		}
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).Warn("request failed")
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("failed to write response")
	}
}
