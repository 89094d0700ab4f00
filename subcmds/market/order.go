// Copyright (c) 2025 BVK Chaitanya

package market

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/shopspring/decimal"
	"github.com/visvasity/cli"
)

type Order struct {
	cmdutil.UserFlags

	price string
}

func (c *Order) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("order", flag.ContinueOnError)
	c.UserFlags.SetFlags(fset)
	fset.StringVar(&c.price, "price", "", "limit price (market order when empty)")
	return "order", fset, cli.CmdFunc(c.run)
}

func (c *Order) Purpose() string {
	return "Places a manual buy or sell order"
}

func (c *Order) Description() string {
	return `
Command "order" takes the side (buy or sell), symbol and the size in the base
currency as arguments. A limit order is placed when the -price flag is given;
otherwise the order is placed at the market price.
`
}

func (c *Order) run(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("this command takes side, symbol and size arguments")
	}
	user, err := c.UserFlags.User()
	if err != nil {
		return err
	}
	size, err := decimal.NewFromString(args[2])
	if err != nil {
		return fmt.Errorf("could not parse size %q: %w", args[2], err)
	}
	req := &api.MarketOrderRequest{
		User:   user,
		Symbol: args[1],
		Side:   strings.ToUpper(args[0]),
		Type:   "market",
		Size:   size,
	}
	if c.price != "" {
		if req.Price, err = decimal.NewFromString(c.price); err != nil {
			return fmt.Errorf("could not parse price %q: %w", c.price, err)
		}
		req.Type = "limit"
	}
	resp, err := cmdutil.Post[api.MarketOrderResponse](ctx, &c.ClientFlags, api.MarketOrderPath, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "order-id %s\nclient-ref %s\n", resp.OrderID, resp.ClientRef)
	return nil
}

func printOrders(w io.Writer, orders []*api.Order) {
	for _, o := range orders {
		fmt.Fprintf(w, "%s %s %s size=%s price=%s status=%s filled=%s", o.OrderID, o.Symbol, o.Side, o.Size, o.Price, o.Status, o.FilledSize)
		if o.FilledSize.IsPositive() {
			fmt.Fprintf(w, " avg=%s fee=%s", o.FilledPrice, o.Fee)
		}
		if o.GridID != "" {
			fmt.Fprintf(w, " grid=%s", o.GridID)
		}
		if !o.FinishTime.IsZero() {
			fmt.Fprintf(w, " finished=%s", o.FinishTime.Format(time.RFC3339))
		}
		fmt.Fprintln(w)
	}
}

type OpenOrders struct {
	cmdutil.ClientFlags
}

func (c *OpenOrders) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("open-orders", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "open-orders", fset, cli.CmdFunc(c.run)
}

func (c *OpenOrders) Purpose() string {
	return "Lists open orders for a symbol including the grid orders"
}

func (c *OpenOrders) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (symbol) argument")
	}
	req := &api.MarketOpenOrdersRequest{Symbol: args[0]}
	resp, err := cmdutil.Post[api.MarketOpenOrdersResponse](ctx, &c.ClientFlags, api.MarketOpenOrdersPath, req)
	if err != nil {
		return err
	}
	printOrders(cli.Stdout(ctx), resp.Orders)
	return nil
}

type OrderHistory struct {
	cmdutil.ClientFlags

	limit int
}

func (c *OrderHistory) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("order-history", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.IntVar(&c.limit, "limit", 10, "max number of orders")
	return "order-history", fset, cli.CmdFunc(c.run)
}

func (c *OrderHistory) Purpose() string {
	return "Lists recently finished orders for a symbol"
}

func (c *OrderHistory) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (symbol) argument")
	}
	req := &api.MarketHistoryRequest{Symbol: args[0], Limit: c.limit}
	resp, err := cmdutil.Post[api.MarketHistoryResponse](ctx, &c.ClientFlags, api.MarketHistoryPath, req)
	if err != nil {
		return err
	}
	printOrders(cli.Stdout(ctx), resp.Orders)
	return nil
}

type CancelAll struct {
	cmdutil.UserFlags

	includeGrids bool
}

func (c *CancelAll) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("cancel-all", flag.ContinueOnError)
	c.UserFlags.SetFlags(fset)
	fset.BoolVar(&c.includeGrids, "include-grids", false, "also cancel orders owned by grids")
	return "cancel-all", fset, cli.CmdFunc(c.run)
}

func (c *CancelAll) Purpose() string {
	return "Cancels all open manual orders for a symbol"
}

func (c *CancelAll) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (symbol) argument")
	}
	user, err := c.UserFlags.User()
	if err != nil {
		return err
	}
	req := &api.MarketCancelAllRequest{
		User:         user,
		Symbol:       args[0],
		IncludeGrids: c.includeGrids,
	}
	resp, err := cmdutil.Post[api.MarketCancelAllResponse](ctx, &c.ClientFlags, api.MarketCancelAllPath, req)
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "canceled %d\n", resp.Canceled)
	for _, id := range resp.Failed {
		fmt.Fprintf(stdout, "failed %s\n", id)
	}
	return nil
}
