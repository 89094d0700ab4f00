// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/telegram"
	"github.com/bvk/gridbot/timerange"
	"github.com/shopspring/decimal"
	"github.com/visvasity/cli"
)

type telegramCommand struct {
	name    string
	purpose string
	handler telegram.CmdFunc
}

func (s *Server) telegramCommands() []*telegramCommand {
	return []*telegramCommand{
		{"grid_start", "Starts a grid: SYMBOL LEVELS SIZE [LOWER UPPER]", s.gridStartCmd},
		{"grid_stop", "Stops a grid and cancels its orders: SYMBOL", s.gridStopCmd},
		{"grid_pause", "Pauses a grid: SYMBOL", s.gridPauseCmd},
		{"grid_resume", "Resumes a paused grid: SYMBOL", s.gridResumeCmd},
		{"grid_status", "Prints grid status: [SYMBOL]", s.gridStatusCmd},
		{"alert_add", "Adds an alert: SYMBOL price|volume above|below|change THRESHOLD [COOLDOWN]", s.alertAddCmd},
		{"alert_del", "Deletes an alert: RULE-ID", s.alertDelCmd},
		{"alert_enable", "Enables an alert: RULE-ID", s.alertEnableCmd},
		{"alert_disable", "Disables an alert: RULE-ID", s.alertDisableCmd},
		{"alerts", "Lists alerts: [SYMBOL]", s.alertsCmd},
		{"alert_history", "Lists recently fired alerts", s.alertHistoryCmd},
		{"price", "Prints market snapshot: SYMBOL", s.priceCmd},
		{"balance", "Prints non-zero exchange balances", s.balanceCmd},
		{"buy", "Places a manual buy order: SYMBOL SIZE [PRICE]", s.buyCmd},
		{"sell", "Places a manual sell order: SYMBOL SIZE [PRICE]", s.sellCmd},
		{"orders", "Lists open orders: SYMBOL", s.ordersCmd},
		{"order_history", "Lists recently finished orders: SYMBOL", s.orderHistoryCmd},
		{"cancel_all", "Cancels manual open orders: SYMBOL", s.cancelAllCmd},
		{"profit", "Prints realized profit: [PERIOD]", s.profitCmd},
		{"pnl", "Prints account value change since the last daily snapshot", s.pnlCmd},
		{"status", "Prints process status", s.statusCmd},
	}
}

func (s *Server) addTelegramCommands(ctx context.Context) error {
	for _, c := range s.telegramCommands() {
		if err := s.AddTelegramCommand(ctx, c.name, c.purpose, c.handler); err != nil {
			return fmt.Errorf("could not add telegram command %q: %w", c.name, err)
		}
	}
	return nil
}

func (s *Server) AddTelegramCommand(ctx context.Context, name, purpose string, handler telegram.CmdFunc) error {
	if s.telegramClient != nil {
		return s.telegramClient.AddCommand(ctx, name, purpose, handler)
	}
	return nil // Ignored
}

func usage(format string) error {
	return fmt.Errorf("usage: %s: %w", format, os.ErrInvalid)
}

func parseDecimal(name, s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s %q is not a number: %w", name, s, os.ErrInvalid)
	}
	return v, nil
}

func printGrid(w io.Writer, g *api.GridStatus) {
	fmt.Fprintf(w, "%s %s [%s, %s] levels=%d size=%s\n", g.ID, g.Status, g.Lower, g.Upper, g.NumLevels, g.Size)
	fmt.Fprintf(w, "open=%d trades=%d profit=%s\n", g.OpenOrders, g.CompletedTrades, g.RealizedProfit.StringFixed(4))
	for _, l := range g.Levels {
		if l.Stuck || l.LastError != "" {
			fmt.Fprintf(w, "level %d (%s) retries=%d stuck=%t: %s\n", l.Index, l.Price, l.Retries, l.Stuck, l.LastError)
		}
	}
	if len(g.Leftovers) != 0 {
		fmt.Fprintf(w, "not canceled: %s\n", strings.Join(g.Leftovers, ", "))
	}
}

func printRule(w io.Writer, r *api.AlertRule) {
	state := "enabled"
	if !r.Enabled {
		state = "disabled"
	}
	fmt.Fprintf(w, "%s: %s %s %s %s cooldown=%s %s triggered=%d\n", r.ID, r.Symbol, r.Metric, r.Comparison, r.Threshold, r.Cooldown, state, r.TriggerCount)
}

func (s *Server) gridStartCmd(ctx context.Context, args []string) error {
	const format = "/grid_start SYMBOL LEVELS SIZE [LOWER UPPER]"
	if len(args) != 3 && len(args) != 5 {
		return usage(format)
	}
	levels, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("levels %q is not an integer: %w", args[1], os.ErrInvalid)
	}
	size, err := parseDecimal("size", args[2])
	if err != nil {
		return err
	}
	req := &api.GridStartRequest{
		User:   telegram.Sender(ctx),
		Symbol: args[0],
		Levels: levels,
		Size:   size,
	}
	if len(args) == 5 {
		if req.Lower, err = parseDecimal("lower", args[3]); err != nil {
			return err
		}
		if req.Upper, err = parseDecimal("upper", args[4]); err != nil {
			return err
		}
	}
	resp, err := s.doGridStart(ctx, req)
	if err != nil {
		return fmt.Errorf("could not start grid on %s: %w", args[0], err)
	}
	printGrid(cli.Stdout(ctx), resp.Grid)
	return nil
}

func (s *Server) gridStopCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("/grid_stop SYMBOL")
	}
	resp, err := s.doGridStop(ctx, &api.GridStopRequest{User: telegram.Sender(ctx), Symbol: args[0]})
	if err != nil {
		return fmt.Errorf("could not stop grid on %s: %w", args[0], err)
	}
	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "Canceled %d orders.\n", resp.Canceled)
	if len(resp.Failed) != 0 {
		fmt.Fprintf(stdout, "Could not cancel %d orders: %s\n", len(resp.Failed), strings.Join(resp.Failed, ", "))
	}
	printGrid(stdout, resp.Grid)
	return nil
}

func (s *Server) gridPauseCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("/grid_pause SYMBOL")
	}
	resp, err := s.doGridPause(ctx, &api.GridPauseRequest{User: telegram.Sender(ctx), Symbol: args[0]})
	if err != nil {
		return fmt.Errorf("could not pause grid on %s: %w", args[0], err)
	}
	printGrid(cli.Stdout(ctx), resp.Grid)
	return nil
}

func (s *Server) gridResumeCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("/grid_resume SYMBOL")
	}
	resp, err := s.doGridResume(ctx, &api.GridResumeRequest{User: telegram.Sender(ctx), Symbol: args[0]})
	if err != nil {
		return fmt.Errorf("could not resume grid on %s: %w", args[0], err)
	}
	printGrid(cli.Stdout(ctx), resp.Grid)
	return nil
}

func (s *Server) gridStatusCmd(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return usage("/grid_status [SYMBOL]")
	}
	req := &api.GridStatusRequest{User: telegram.Sender(ctx)}
	if len(args) == 1 {
		req.Symbol = args[0]
	}
	resp, err := s.doGridStatus(ctx, req)
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	if len(resp.Grids) == 0 {
		fmt.Fprintln(stdout, "No grids.")
		return nil
	}
	for _, g := range resp.Grids {
		printGrid(stdout, g)
	}
	return nil
}

func (s *Server) alertAddCmd(ctx context.Context, args []string) error {
	const format = "/alert_add SYMBOL price|volume above|below|change THRESHOLD [COOLDOWN]"
	if len(args) != 4 && len(args) != 5 {
		return usage(format)
	}
	threshold, err := parseDecimal("threshold", args[3])
	if err != nil {
		return err
	}
	req := &api.AlertCreateRequest{
		User:       telegram.Sender(ctx),
		Symbol:     args[0],
		Metric:     args[1],
		Comparison: args[2],
		Threshold:  threshold,
	}
	if len(args) == 5 {
		d, err := time.ParseDuration(args[4])
		if err != nil {
			return fmt.Errorf("cooldown %q is not a duration: %w", args[4], os.ErrInvalid)
		}
		req.Cooldown = d
	}
	resp, err := s.doAlertCreate(ctx, req)
	if err != nil {
		return fmt.Errorf("could not add alert on %s: %w", args[0], err)
	}
	printRule(cli.Stdout(ctx), resp.Rule)
	return nil
}

func (s *Server) alertDelCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("/alert_del RULE-ID")
	}
	resp, err := s.doAlertDelete(ctx, &api.AlertDeleteRequest{User: telegram.Sender(ctx), RuleID: args[0]})
	if err != nil {
		return fmt.Errorf("could not delete alert %s: %w", args[0], err)
	}
	fmt.Fprintf(cli.Stdout(ctx), "Deleted alert %s.\n", resp.Rule.ID)
	return nil
}

func (s *Server) setAlertEnabled(ctx context.Context, id string, enabled bool) error {
	resp, err := s.doAlertEnable(ctx, &api.AlertEnableRequest{User: telegram.Sender(ctx), RuleID: id, Enabled: enabled})
	if err != nil {
		return fmt.Errorf("could not update alert %s: %w", id, err)
	}
	printRule(cli.Stdout(ctx), resp.Rule)
	return nil
}

func (s *Server) alertEnableCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("/alert_enable RULE-ID")
	}
	return s.setAlertEnabled(ctx, args[0], true)
}

func (s *Server) alertDisableCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("/alert_disable RULE-ID")
	}
	return s.setAlertEnabled(ctx, args[0], false)
}

func (s *Server) alertsCmd(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return usage("/alerts [SYMBOL]")
	}
	req := &api.AlertListRequest{User: telegram.Sender(ctx)}
	if len(args) == 1 {
		req.Symbol = args[0]
	}
	resp, err := s.doAlertList(ctx, req)
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	if len(resp.Rules) == 0 {
		fmt.Fprintln(stdout, "No alerts.")
		return nil
	}
	for _, r := range resp.Rules {
		printRule(stdout, r)
	}
	return nil
}

func (s *Server) alertHistoryCmd(ctx context.Context, args []string) error {
	resp, err := s.doAlertHistory(ctx, &api.AlertHistoryRequest{User: telegram.Sender(ctx), Limit: 10})
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	if len(resp.Events) == 0 {
		fmt.Fprintln(stdout, "No alerts were fired.")
		return nil
	}
	for _, ev := range resp.Events {
		fmt.Fprintf(stdout, "%s %s: %s\n", ev.Time.In(s.opts.Location).Format(time.DateTime), ev.RuleID, ev.Message)
	}
	return nil
}

func (s *Server) priceCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("/price SYMBOL")
	}
	snap, err := s.doMarketSnapshot(ctx, &api.MarketSnapshotRequest{Symbol: args[0]})
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "%s last=%s bid=%s ask=%s\n", snap.Symbol, snap.LastPrice, snap.Bid, snap.Ask)
	fmt.Fprintf(stdout, "open=%s high=%s low=%s volume=%s\n", snap.DayOpen, snap.DayHigh, snap.DayLow, snap.Volume24h)
	return nil
}

func (s *Server) balanceCmd(ctx context.Context, args []string) error {
	resp, err := s.doMarketBalance(ctx, &api.MarketBalanceRequest{})
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	if len(resp.Balances) == 0 {
		fmt.Fprintln(stdout, "No balances.")
		return nil
	}
	for _, ccy := range slices.Sorted(maps.Keys(resp.Balances)) {
		fmt.Fprintf(stdout, "%s: %s\n", strings.ToUpper(ccy), resp.Balances[ccy])
	}
	return nil
}

func printOrder(w io.Writer, loc *time.Location, o *api.Order) {
	fmt.Fprintf(w, "%s %s %s %s@%s %s", o.OrderID, o.Symbol, o.Side, o.Size, o.Price, o.Status)
	if o.FilledSize.IsPositive() {
		fmt.Fprintf(w, " filled=%s@%s", o.FilledSize, o.FilledPrice.StringFixed(4))
	}
	if o.GridID != "" {
		fmt.Fprintf(w, " grid=%s", o.GridID)
	}
	if !o.FinishTime.IsZero() {
		fmt.Fprintf(w, " at %s", o.FinishTime.In(loc).Format(time.DateTime))
	}
	fmt.Fprintln(w)
}

// placeCmd places a limit order when a price is given and a market order
// otherwise.
func (s *Server) placeCmd(ctx context.Context, side string, args []string) error {
	if len(args) != 2 && len(args) != 3 {
		return usage(fmt.Sprintf("/%s SYMBOL SIZE [PRICE]", strings.ToLower(side)))
	}
	size, err := parseDecimal("size", args[1])
	if err != nil {
		return err
	}
	req := &api.MarketOrderRequest{
		User:   telegram.Sender(ctx),
		Symbol: args[0],
		Side:   side,
		Type:   "market",
		Size:   size,
	}
	if len(args) == 3 {
		if req.Price, err = parseDecimal("price", args[2]); err != nil {
			return err
		}
		req.Type = "limit"
	}
	resp, err := s.doMarketOrder(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "Placed %s %s order %s.\n", req.Type, strings.ToLower(side), resp.OrderID)
	return nil
}

func (s *Server) buyCmd(ctx context.Context, args []string) error {
	return s.placeCmd(ctx, "BUY", args)
}

func (s *Server) sellCmd(ctx context.Context, args []string) error {
	return s.placeCmd(ctx, "SELL", args)
}

func (s *Server) ordersCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("/orders SYMBOL")
	}
	resp, err := s.doMarketOpenOrders(ctx, &api.MarketOpenOrdersRequest{Symbol: args[0]})
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	if len(resp.Orders) == 0 {
		fmt.Fprintln(stdout, "No open orders.")
		return nil
	}
	for _, o := range resp.Orders {
		printOrder(stdout, s.opts.Location, o)
	}
	return nil
}

func (s *Server) orderHistoryCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("/order_history SYMBOL")
	}
	resp, err := s.doMarketHistory(ctx, &api.MarketHistoryRequest{Symbol: args[0], Limit: 10})
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	if len(resp.Orders) == 0 {
		fmt.Fprintln(stdout, "No recent orders.")
		return nil
	}
	for _, o := range resp.Orders {
		printOrder(stdout, s.opts.Location, o)
	}
	return nil
}

func (s *Server) cancelAllCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("/cancel_all SYMBOL")
	}
	resp, err := s.doMarketCancelAll(ctx, &api.MarketCancelAllRequest{User: telegram.Sender(ctx), Symbol: args[0]})
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "Canceled %d orders.\n", resp.Canceled)
	if len(resp.Failed) != 0 {
		fmt.Fprintf(stdout, "Could not cancel %d orders: %s\n", len(resp.Failed), strings.Join(resp.Failed, ", "))
	}
	return nil
}

func (s *Server) pnlCmd(ctx context.Context, args []string) error {
	resp, err := s.doPnL(ctx, &api.PnLRequest{})
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	quote := strings.ToUpper(resp.Quote)
	fmt.Fprintf(stdout, "Account value: %s %s\n", resp.Current.StringFixed(2), quote)
	if resp.PreviousDay == "" {
		fmt.Fprintln(stdout, "No daily snapshot yet.")
	} else {
		fmt.Fprintf(stdout, "Since %s: %s %s (%s%%)\n", resp.PreviousDay, resp.PnL.StringFixed(2), quote, resp.PnLPercent.StringFixed(2))
	}
	if len(resp.Unpriced) != 0 {
		fmt.Fprintf(stdout, "Not priced: %s\n", strings.Join(resp.Unpriced, ", "))
	}
	return nil
}

func (s *Server) profitCmd(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return usage("/profit [PERIOD]")
	}
	user, now := telegram.Sender(ctx), time.Now()
	stdout := cli.Stdout(ctx)

	if len(args) == 1 {
		resp, err := s.profit(ctx, user, args[0], now)
		if err != nil {
			return err
		}
		for _, item := range resp.Items {
			fmt.Fprintf(stdout, "%s: %s (%d trades)\n", item.GridID, item.Profit.StringFixed(3), item.Trades)
		}
		fmt.Fprintf(stdout, "Total: %s (%d trades)\n", resp.TotalProfit.StringFixed(3), resp.TotalTrades)
		return nil
	}

	for _, period := range timerange.Periods() {
		resp, err := s.profit(ctx, user, period, now)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s: %s\n", period, resp.TotalProfit.StringFixed(3))
	}
	return nil
}

func (s *Server) statusCmd(ctx context.Context, args []string) error {
	resp, err := s.doStatus(ctx, &api.StatusRequest{})
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "Exchange: %s\n", resp.Exchange)
	fmt.Fprintf(stdout, "Uptime: %s\n", telegram.Uptime(resp.Uptime))
	fmt.Fprintf(stdout, "Live grids: %d\n", resp.LiveGrids)
	fmt.Fprintf(stdout, "Watched: %s\n", strings.Join(resp.WatchedSymbols, ", "))
	fmt.Fprintf(stdout, "RSS: %dMiB CPU: %.1f%%\n", resp.ProcessRSS>>20, resp.ProcessCPU)
	fmt.Fprintf(stdout, "Host memory: %dMiB (%.1f%% used)\n", resp.HostMemTotal>>20, resp.HostMemUsedPct)
	return nil
}
