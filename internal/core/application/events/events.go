// Package events defines the messages streamed to resolvers and operators and
// the hub that sequences and fans them out.
package events

import (
	"encoding/json"
	"time"

	"github.com/thanhpk/randstr"
)

const (
	OrderCreated       = "order_created"
	PriceUpdate        = "price_update"
	BidReceived        = "bid_received"
	BidRejected        = "bid_rejected"
	OrderMatched       = "order_matched"
	OrderExpired       = "order_expired"
	OrderCancelled     = "order_cancelled"
	EscrowStateChanged = "escrow_state_changed"
	SecretReleased     = "secret_released"
	SwapSettled        = "swap_settled"
	SwapCancelled      = "swap_cancelled"
	SwapAlert          = "swap_alert"
)

// Event is one message of the stream. Seq is assigned by the Hub. Events
// with a recipient are private to that resolver.
type Event struct {
	Seq       uint64      `json:"seq,omitempty"`
	ID        string      `json:"id"`
	To        string      `json:"-"`
	Type      string      `json:"type"`
	OrderID   string      `json:"orderId,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// New returns an unsequenced event.
func New(eventType, orderID string, data interface{}) Event {
	return Event{
		ID:        randstr.Hex(8),
		Type:      eventType,
		OrderID:   orderID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewDirect returns an unsequenced event addressed to the given resolver
// only.
func NewDirect(eventType, orderID, to string, data interface{}) Event {
	e := New(eventType, orderID, data)
	e.To = to
	return e
}

// IsPrivate returns whether the event is addressed to a single resolver.
func (e Event) IsPrivate() bool {
	return e.To != ""
}

// Serialize returns the JSON encoding of the event.
func (e Event) Serialize() []byte {
	buf, _ := json.Marshal(e)
	return buf
}

type OrderCreatedData struct {
	Order interface{} `json:"order"`
}

type PriceUpdateData struct {
	CurrentPrice    string        `json:"currentPrice"`
	Progress        string        `json:"progress"`
	TimeRemainingMs int64         `json:"timeRemaining"`
	Profitability   Profitability `json:"profitability"`
}

type Profitability struct {
	IsProfitable         bool   `json:"isProfitable"`
	NetProfit            string `json:"netProfit"`
	OptimalExecutionTime int64  `json:"optimalExecutionTime"`
}

type BidData struct {
	ResolverID string `json:"resolverId"`
	Price      string `json:"price"`
	Timestamp  int64  `json:"timestamp"`
}

type BidRejectedData struct {
	ResolverID string `json:"resolverId"`
	Reason     string `json:"reason"`
}

type OrderCancelledData struct {
	Reason string `json:"reason,omitempty"`
}

type OrderMatchedData struct {
	ResolverID string `json:"resolverId"`
	FillPrice  string `json:"fillPrice"`
	SrcAmount  string `json:"srcAmount"`
	DstAmount  string `json:"dstAmount"`
	SecretHash string `json:"secretHash"`
}

type EscrowStateData struct {
	SwapID  string `json:"swapId"`
	Side    string `json:"side"`
	Status  string `json:"status"`
	Address string `json:"address,omitempty"`
	TxID    string `json:"txid,omitempty"`
}

type SecretData struct {
	SwapID string `json:"swapId"`
	Secret string `json:"secret"`
}

type SwapData struct {
	SwapID string `json:"swapId"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}
