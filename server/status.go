// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/bvk/gridbot/api"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

func (s *Server) doStatus(ctx context.Context, _ *api.StatusRequest) (*api.StatusResponse, error) {
	resp := &api.StatusResponse{
		Pid:      os.Getpid(),
		Uptime:   time.Since(s.startTime).Round(time.Second),
		Exchange: s.gw.ExchangeName(),
	}

	live, err := s.grids.LiveGrids(ctx)
	if err != nil {
		return nil, err
	}
	for _, users := range live {
		resp.LiveGrids += len(users)
	}
	watched, err := s.monitor.Watched(ctx)
	if err != nil {
		return nil, err
	}
	resp.WatchedSymbols = watched

	// Process and host statistics are best effort.
	if p, err := process.NewProcessWithContext(ctx, int32(resp.Pid)); err != nil {
		slog.Warn("could not get process handle (ignored)", "err", err)
	} else {
		if info, err := p.MemoryInfoWithContext(ctx); err == nil {
			resp.ProcessRSS = info.RSS
		}
		if pct, err := p.CPUPercentWithContext(ctx); err == nil {
			resp.ProcessCPU = pct
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.HostMemTotal = vm.Total
		resp.HostMemUsedPct = vm.UsedPercent
	}
	return resp, nil
}
