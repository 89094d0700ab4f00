// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/dustin/go-humanize"
	"github.com/visvasity/cli"
)

type Status struct {
	cmdutil.ClientFlags
}

func (c *Status) Purpose() string {
	return "Status prints the gridbot daemon status"
}

func (c *Status) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("status", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "status", fset, cli.CmdFunc(c.run)
}

func (c *Status) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("this command takes no arguments")
	}
	resp, err := cmdutil.Post[api.StatusResponse](ctx, &c.ClientFlags, api.StatusPath, new(api.StatusRequest))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cli.Stdout(ctx), 0, 8, 1, ' ', 0)
	fmt.Fprintf(tw, "Pid\t%d\n", resp.Pid)
	fmt.Fprintf(tw, "Uptime\t%s\n", resp.Uptime.Truncate(time.Second))
	fmt.Fprintf(tw, "Exchange\t%s\n", resp.Exchange)
	fmt.Fprintf(tw, "Live grids\t%d\n", resp.LiveGrids)
	fmt.Fprintf(tw, "Watched symbols\t%s\n", strings.Join(resp.WatchedSymbols, " "))
	fmt.Fprintf(tw, "Process RSS\t%s\n", humanize.IBytes(resp.ProcessRSS))
	fmt.Fprintf(tw, "Process CPU\t%.1f%%\n", resp.ProcessCPU)
	fmt.Fprintf(tw, "Host memory\t%s (%.1f%% used)\n", humanize.IBytes(resp.HostMemTotal), resp.HostMemUsedPct)
	return tw.Flush()
}
