package main

import (
	"github.com/urfave/cli/v2"
)

var (
	swap = cli.Command{
		Name:  "swap",
		Usage: "inspect the settlement of a swap",
		Subcommands: []*cli.Command{
			{
				Name:  "info",
				Usage: "get the escrows, timelocks and status of a swap",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "the id of the swap, same as its order",
						Required: true,
					},
				},
				Action: swapInfoAction,
			},
		},
	}
	listswaps = cli.Command{
		Name:   "swaps",
		Usage:  "list all swaps",
		Action: listSwapsAction,
	}
)

func swapInfoAction(ctx *cli.Context) error {
	return getAndPrint("/swaps/" + ctx.String("id"))
}

func listSwapsAction(ctx *cli.Context) error {
	return getAndPrint("/swaps")
}
