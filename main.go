// Copyright (c) 2023 BVK Chaitanya

package main

import (
	"context"
	"log"
	"os"

	"github.com/bvk/gridbot/subcmds"
	"github.com/bvk/gridbot/subcmds/alert"
	"github.com/bvk/gridbot/subcmds/db"
	"github.com/bvk/gridbot/subcmds/grid"
	"github.com/bvk/gridbot/subcmds/market"
	"github.com/bvk/gridbot/subcmds/setup"
	"github.com/visvasity/cli"
)

func main() {
	setupCmds := []cli.Command{
		new(setup.HTX),
		new(setup.Telegram),
		new(setup.PushOver),
	}

	gridCmds := []cli.Command{
		new(grid.Start),
		new(grid.Stop),
		new(grid.Pause),
		new(grid.Resume),
		new(grid.Status),
	}

	alertCmds := []cli.Command{
		new(alert.Create),
		new(alert.Delete),
		new(alert.List),
		new(alert.Enable),
		alert.NewDisable(),
		new(alert.History),
	}

	marketCmds := []cli.Command{
		new(market.Snapshot),
		new(market.Balance),
		new(market.Order),
		new(market.OpenOrders),
		new(market.OrderHistory),
		new(market.CancelAll),
		new(market.PnL),
	}

	dbCmds := []cli.Command{
		new(db.Get),
		new(db.List),
		new(db.Delete),
		new(db.Backup),
		new(db.Restore),
		new(db.Export),
		new(db.Import),
	}

	cmds := []cli.Command{
		new(subcmds.Run),
		new(subcmds.Status),
		new(subcmds.Profit),
		new(subcmds.IDGen),
		cli.NewGroup("setup", "Configure exchange and notification keys", setupCmds...),
		cli.NewGroup("grid", "Manage grid trading on symbols", gridCmds...),
		cli.NewGroup("alert", "Manage market alert rules", alertCmds...),
		cli.NewGroup("market", "View market data and balances", marketCmds...),
		cli.NewGroup("db", "View/update database directly", dbCmds...),
	}
	if err := cli.Run(context.Background(), cmds, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
