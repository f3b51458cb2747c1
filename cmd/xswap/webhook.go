package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/urfave/cli/v2"
	"github.com/xswap-network/xswapd/internal/core/application/events"
)

var webhookEvents = []string{
	events.OrderMatched,
	events.OrderExpired,
	events.OrderCancelled,
	events.EscrowStateChanged,
	events.SwapSettled,
	events.SwapCancelled,
	events.SwapAlert,
}

var (
	eventFlag = &cli.StringFlag{
		Name: "event",
		Usage: fmt.Sprintf(
			"the target event, one of %v, or * for any event", webhookEvents,
		),
	}

	webhook = cli.Command{
		Name:  "webhook",
		Usage: "add or remove webhooks",
		Subcommands: []*cli.Command{
			webhookAddCmd, webhookRemoveCmd,
		},
	}
	listwebhooks = cli.Command{
		Name:   "webhooks",
		Usage:  "list all webhooks, optionally filtered by target event",
		Flags:  []cli.Flag{eventFlag},
		Action: listWebhooksAction,
	}

	webhookAddCmd = &cli.Command{
		Name:  "add",
		Usage: "add a (secured) webhook endpoint called whenever a target event occurs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "endpoint",
				Usage: "the webhook endpoint to be called whenever the target event occurs",
				Value: "",
			},
			&cli.StringFlag{
				Name: "secret",
				Usage: "the eventual secret to use to generate a bearer token for " +
					"authenticating requests to the webhook endpoint",
				Value: "",
			},
			eventFlag,
		},
		Action: addWebhookAction,
	}

	webhookRemoveCmd = &cli.Command{
		Name:  "remove",
		Usage: "remove a webhook",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "id",
				Usage: "the id of the webhook to remove",
				Value: "",
			},
		},
		Action: removeWebhookAction,
	}
)

func addWebhookAction(ctx *cli.Context) error {
	event := ctx.String("event")
	if event == "" {
		return fmt.Errorf("missing event")
	}

	reply, err := doRequest(http.MethodPost, "/webhooks", map[string]string{
		"event":    event,
		"endpoint": ctx.String("endpoint"),
		"secret":   ctx.String("secret"),
	})
	if err != nil {
		return err
	}

	printRespJSON(reply)
	return nil
}

func removeWebhookAction(ctx *cli.Context) error {
	hookID := ctx.String("id")
	if hookID == "" {
		return fmt.Errorf("missing webhook id")
	}

	if _, err := doRequest(
		http.MethodDelete, "/webhooks/"+url.PathEscape(hookID), nil,
	); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("removed webhook with id:", hookID)
	return nil
}

func listWebhooksAction(ctx *cli.Context) error {
	endpoint := "/webhooks"
	if event := ctx.String("event"); event != "" {
		endpoint += "?event=" + url.QueryEscape(event)
	}
	return getAndPrint(endpoint)
}
