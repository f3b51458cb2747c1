// Package httpchain is a chain collaborator talking JSON over HTTP to a relay
// that holds the resolver taker authority on one ledger.
package httpchain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/internal/core/ports"
	"github.com/xswap-network/xswapd/pkg/circuitbreaker"
)

type service struct {
	name    string
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
}

// NewService returns a ports.Chain backed by the relay at baseURL. Network
// failures, server errors and an open circuit are all reported as
// domain.ErrChainUnavailable.
func NewService(name, baseURL string, timeout time.Duration) (ports.Chain, error) {
	if name == "" {
		return nil, fmt.Errorf("missing chain name")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid relay url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &service{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		cb:      circuitbreaker.NewCircuitBreaker(name),
	}, nil
}

func (s *service) GetConfirmedEscrow(
	ctx context.Context, address string,
) (*domain.EscrowRecord, error) {
	var resp escrow
	path := fmt.Sprintf("/escrows/%s", url.PathEscape(address))
	if err := s.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain()
}

func (s *service) EscrowAddress(
	ctx context.Context, params domain.EscrowRecord,
) (string, error) {
	var resp addressResponse
	if err := s.do(
		ctx, http.MethodPost, "/escrows/address", newEscrow(params), &resp,
	); err != nil {
		return "", err
	}
	if resp.Address == "" {
		return "", fmt.Errorf("%s: relay returned no escrow address", s.name)
	}
	return resp.Address, nil
}

func (s *service) GetCurrentTime(ctx context.Context) (int64, error) {
	var resp timeResponse
	if err := s.do(ctx, http.MethodGet, "/time", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Time, nil
}

func (s *service) DeployEscrow(
	ctx context.Context, params domain.EscrowRecord,
) (*ports.TxResult, error) {
	var resp txResult
	if err := s.do(ctx, http.MethodPost, "/escrows", newEscrow(params), &resp); err != nil {
		return nil, err
	}
	if resp.Address == "" {
		return nil, fmt.Errorf("%s: relay returned no escrow address", s.name)
	}
	return &ports.TxResult{TxID: resp.TxID, EscrowAddress: resp.Address}, nil
}

func (s *service) Withdraw(
	ctx context.Context, address string, secret []byte,
) (*ports.TxResult, error) {
	var resp txResult
	path := fmt.Sprintf("/escrows/%s/withdraw", url.PathEscape(address))
	req := withdrawRequest{hex.EncodeToString(secret)}
	if err := s.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &ports.TxResult{TxID: resp.TxID, EscrowAddress: address}, nil
}

func (s *service) Cancel(
	ctx context.Context, address string,
) (*ports.TxResult, error) {
	var resp txResult
	path := fmt.Sprintf("/escrows/%s/cancel", url.PathEscape(address))
	if err := s.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &ports.TxResult{TxID: resp.TxID, EscrowAddress: address}, nil
}

// do sends the request through the circuit breaker. Only transport failures
// and server errors count as breaker failures: a domain rejection means the
// relay is healthy.
func (s *service) do(
	ctx context.Context, method, path string, body, result interface{},
) error {
	var rejection error
	_, err := s.cb.Execute(func() (interface{}, error) {
		status, resp, err := s.send(ctx, method, path, body)
		if err != nil {
			return nil, err
		}
		if status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("relay responded with status %d: %s", status, resp)
		}
		if status != http.StatusOK {
			rejection = s.parseError(status, resp)
			return nil, nil
		}
		if result != nil {
			if err := json.Unmarshal(resp, result); err != nil {
				rejection = fmt.Errorf("%s: invalid relay response: %w", s.name, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s: %s", domain.ErrChainUnavailable, s.name, err)
	}
	return rejection
}

func (s *service) send(
	ctx context.Context, method, path string, body interface{},
) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, buf, nil
}

func (s *service) parseError(status int, body []byte) error {
	resp := errorResponse{}
	if err := json.Unmarshal(body, &resp); err != nil {
		resp.Message = string(body)
	}
	if status == http.StatusNotFound && resp.Code == "" {
		resp.Code = "escrow_not_found"
	}
	if kind, ok := errorsByCode[resp.Code]; ok {
		if resp.Message == "" {
			return fmt.Errorf("%s: %w", s.name, kind)
		}
		return fmt.Errorf("%s: %w: %s", s.name, kind, resp.Message)
	}
	return errors.New(strings.TrimSpace(fmt.Sprintf(
		"%s: relay rejected request with status %d %s", s.name, status, resp.Message,
	)))
}
