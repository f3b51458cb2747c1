package main

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"github.com/xswap-network/xswapd/internal/core/domain"
)

var (
	orderIDFlag = &cli.StringFlag{
		Name:     "order",
		Usage:    "the id of the order",
		Required: true,
	}
	resolverFlag = &cli.StringFlag{
		Name:  "resolver",
		Usage: "the id of the resolver",
	}

	order = cli.Command{
		Name:  "order",
		Usage: "create, inspect and act on orders",
		Subcommands: []*cli.Command{
			orderNewCmd, orderInfoCmd, orderQuoteCmd, orderBidsCmd,
			orderBidCmd, orderAcceptCmd, orderCancelCmd,
		},
	}
	listorders = cli.Command{
		Name:   "orders",
		Usage:  "list all orders",
		Action: listOrdersAction,
	}

	orderNewCmd = &cli.Command{
		Name:  "new",
		Usage: "sign a new order with the maker key and enter it into the auction",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "key",
				Usage:    "the hex encoded private key of the maker",
				Required: true,
			},
			&cli.StringFlag{Name: "maker", Usage: "the maker address on the source chain", Required: true},
			&cli.StringFlag{Name: "receiver", Usage: "the maker address on the destination chain", Required: true},
			&cli.StringFlag{Name: "src_chain", Usage: "the source chain kind: account or utxo", Value: string(domain.ChainAccount)},
			&cli.StringFlag{Name: "dst_chain", Usage: "the destination chain kind: account or utxo", Value: string(domain.ChainUTXO)},
			&cli.StringFlag{Name: "src_asset", Usage: "the asset sold", Required: true},
			&cli.StringFlag{Name: "dst_asset", Usage: "the asset bought", Required: true},
			&cli.StringFlag{Name: "src_amount", Usage: "the amount sold", Required: true},
			&cli.StringFlag{Name: "min_dst_amount", Usage: "the minimum amount to receive", Required: true},
			&cli.StringFlag{Name: "start_price", Usage: "the auction start price", Required: true},
			&cli.StringFlag{Name: "end_price", Usage: "the auction end price", Required: true},
			&cli.DurationFlag{Name: "delay", Usage: "the delay before the auction starts", Value: 0},
			&cli.DurationFlag{Name: "duration", Usage: "the auction duration", Value: 10 * time.Minute},
		},
		Action: newOrderAction,
	}
	orderInfoCmd = &cli.Command{
		Name:   "info",
		Usage:  "get the info about an order",
		Flags:  []cli.Flag{orderIDFlag},
		Action: orderInfoAction,
	}
	orderQuoteCmd = &cli.Command{
		Name:   "quote",
		Usage:  "get the current auction quote of an order",
		Flags:  []cli.Flag{orderIDFlag},
		Action: orderQuoteAction,
	}
	orderBidsCmd = &cli.Command{
		Name:   "bids",
		Usage:  "list the bids of an order, best first",
		Flags:  []cli.Flag{orderIDFlag},
		Action: orderBidsAction,
	}
	orderBidCmd = &cli.Command{
		Name:  "bid",
		Usage: "submit a bid for an order on behalf of a resolver",
		Flags: []cli.Flag{
			orderIDFlag,
			resolverFlag,
			&cli.StringFlag{Name: "price", Usage: "the bid price", Required: true},
		},
		Action: orderBidAction,
	}
	orderAcceptCmd = &cli.Command{
		Name:   "accept",
		Usage:  "accept the bid of a resolver, or the best one if no resolver is given",
		Flags:  []cli.Flag{orderIDFlag, resolverFlag},
		Action: orderAcceptAction,
	}
	orderCancelCmd = &cli.Command{
		Name:   "cancel",
		Usage:  "withdraw an order from the auction or unwind its swap",
		Flags:  []cli.Flag{orderIDFlag},
		Action: orderCancelAction,
	}
)

func newOrderAction(ctx *cli.Context) error {
	o, err := parseOrder(ctx, time.Now())
	if err != nil {
		return err
	}

	reply, err := doRequest(http.MethodPost, "/orders", newOrderRequest(o))
	if err != nil {
		return err
	}

	printRespJSON(reply)
	return nil
}

func listOrdersAction(ctx *cli.Context) error {
	reply, err := doRequest(http.MethodGet, "/orders", nil)
	if err != nil {
		return err
	}

	printRespJSON(reply)
	return nil
}

func orderInfoAction(ctx *cli.Context) error {
	return getAndPrint("/orders/" + ctx.String("order"))
}

func orderQuoteAction(ctx *cli.Context) error {
	return getAndPrint("/orders/" + ctx.String("order") + "/quote")
}

func orderBidsAction(ctx *cli.Context) error {
	return getAndPrint("/orders/" + ctx.String("order") + "/bids")
}

func orderBidAction(ctx *cli.Context) error {
	resolverID := ctx.String("resolver")
	if resolverID == "" {
		return fmt.Errorf("missing resolver")
	}
	if _, err := decimal.NewFromString(ctx.String("price")); err != nil {
		return fmt.Errorf("invalid price: %s", err)
	}

	reply, err := doRequest(
		http.MethodPost, "/orders/"+ctx.String("order")+"/bids",
		map[string]string{
			"resolverId": resolverID,
			"price":      ctx.String("price"),
		},
	)
	if err != nil {
		return err
	}

	printRespJSON(reply)
	return nil
}

func orderAcceptAction(ctx *cli.Context) error {
	reply, err := doRequest(
		http.MethodPost, "/orders/"+ctx.String("order")+"/accept",
		map[string]string{"resolverId": ctx.String("resolver")},
	)
	if err != nil {
		return err
	}

	printRespJSON(reply)
	return nil
}

func orderCancelAction(ctx *cli.Context) error {
	orderID := ctx.String("order")
	if _, err := doRequest(
		http.MethodPost, "/orders/"+orderID+"/cancel", nil,
	); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("cancellation requested for order:", orderID)
	return nil
}

func getAndPrint(endpoint string) error {
	reply, err := doRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	printRespJSON(reply)
	return nil
}

// parseOrder builds the order from the command flags and signs it with the
// given maker key.
func parseOrder(ctx *cli.Context, now time.Time) (domain.Order, error) {
	keyBytes, err := hex.DecodeString(ctx.String("key"))
	if err != nil || len(keyBytes) != 32 {
		return domain.Order{}, fmt.Errorf("invalid private key")
	}
	key, _ := btcec.PrivKeyFromBytes(keyBytes)

	amounts := map[string]decimal.Decimal{}
	for _, name := range []string{
		"src_amount", "min_dst_amount", "start_price", "end_price",
	} {
		d, err := decimal.NewFromString(ctx.String(name))
		if err != nil {
			return domain.Order{}, fmt.Errorf("invalid %s: %s", name, err)
		}
		amounts[name] = d
	}

	start := now.Add(ctx.Duration("delay"))
	o := domain.Order{
		Maker:        ctx.String("maker"),
		Receiver:     ctx.String("receiver"),
		SrcChain:     domain.ChainKind(ctx.String("src_chain")),
		DstChain:     domain.ChainKind(ctx.String("dst_chain")),
		SrcAsset:     ctx.String("src_asset"),
		DstAsset:     ctx.String("dst_asset"),
		SrcAmount:    amounts["src_amount"],
		MinDstAmount: amounts["min_dst_amount"],
		StartPrice:   amounts["start_price"],
		EndPrice:     amounts["end_price"],
		AuctionStart: start.Unix(),
		AuctionEnd:   start.Add(ctx.Duration("duration")).Unix(),
		Nonce:        uint64(now.UnixNano()),
	}
	o.Sign(key)

	if err := o.Validate(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func newOrderRequest(o domain.Order) map[string]interface{} {
	return map[string]interface{}{
		"maker":        o.Maker,
		"makerPubkey":  hex.EncodeToString(o.MakerPubkey),
		"receiver":     o.Receiver,
		"srcChain":     string(o.SrcChain),
		"dstChain":     string(o.DstChain),
		"srcAsset":     o.SrcAsset,
		"dstAsset":     o.DstAsset,
		"srcAmount":    o.SrcAmount.String(),
		"minDstAmount": o.MinDstAmount.String(),
		"startPrice":   o.StartPrice.String(),
		"endPrice":     o.EndPrice.String(),
		"auctionStart": o.AuctionStart,
		"auctionEnd":   o.AuctionEnd,
		"nonce":        o.Nonce,
		"signature":    hex.EncodeToString(o.Signature),
	}
}
