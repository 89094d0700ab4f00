// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/grid"
	"github.com/bvk/gridbot/gridcalc"
	"github.com/bvk/gridbot/records"
)

func toGridStatus(st *records.GridState) *api.GridStatus {
	if st == nil {
		return nil
	}
	v := &api.GridStatus{
		ID:              grid.ID(st.User, st.Symbol),
		User:            st.User,
		Symbol:          st.Symbol,
		Status:          st.Status,
		Lower:           st.Lower,
		Upper:           st.Upper,
		NumLevels:       st.NumLevels,
		Size:            st.Size,
		Spacing:         st.Spacing,
		AutoRange:       st.AutoRange,
		OpenOrders:      grid.OpenOrders(st),
		CompletedTrades: st.CompletedTrades,
		RealizedProfit:  st.RealizedProfit,
		CreateTime:      st.CreateTime,
		StopTime:        st.StopTime,
		Leftovers:       st.Leftovers,
	}
	for _, l := range st.Levels {
		level := &api.GridLevel{
			Index:     l.Index,
			Price:     l.Price,
			Side:      l.TargetSide,
			Retries:   l.Retries,
			Stuck:     l.Stuck,
			LastError: l.LastError,
		}
		if b := l.Binding; b != nil {
			level.Side = b.Side
			level.Status = b.Status
			level.OrderID = b.OrderID
		}
		v.Levels = append(v.Levels, level)
	}
	return v
}

func (s *Server) doGridStart(ctx context.Context, req *api.GridStartRequest) (*api.GridStartResponse, error) {
	if err := checkUser(req.User); err != nil {
		return nil, err
	}
	spacing, err := gridcalc.ParseSpacing(req.Spacing)
	if err != nil {
		return nil, err
	}
	if req.Spacing == "" && s.opts.Spacing != "" {
		spacing = s.opts.Spacing
	}
	st, err := s.grids.Start(ctx, &grid.StartRequest{
		User:      req.User,
		Symbol:    req.Symbol,
		Lower:     req.Lower,
		Upper:     req.Upper,
		NumLevels: req.Levels,
		Spacing:   spacing,
		Size:      req.Size,
		Budget:    req.Budget,
	})
	if err != nil {
		return nil, err
	}
	return &api.GridStartResponse{Grid: toGridStatus(st)}, nil
}

func (s *Server) doGridStop(ctx context.Context, req *api.GridStopRequest) (*api.GridStopResponse, error) {
	if err := checkUser(req.User); err != nil {
		return nil, err
	}
	report, err := s.grids.Stop(ctx, req.User, req.Symbol)
	if err != nil {
		return nil, err
	}
	resp := &api.GridStopResponse{
		Canceled: report.Canceled,
		Grid:     toGridStatus(report.State),
	}
	for _, id := range report.Failed {
		resp.Failed = append(resp.Failed, string(id))
	}
	return resp, nil
}

func (s *Server) doGridPause(ctx context.Context, req *api.GridPauseRequest) (*api.GridPauseResponse, error) {
	if err := checkUser(req.User); err != nil {
		return nil, err
	}
	st, err := s.grids.Pause(ctx, req.User, req.Symbol)
	if err != nil {
		return nil, err
	}
	return &api.GridPauseResponse{Grid: toGridStatus(st)}, nil
}

func (s *Server) doGridResume(ctx context.Context, req *api.GridResumeRequest) (*api.GridResumeResponse, error) {
	if err := checkUser(req.User); err != nil {
		return nil, err
	}
	st, err := s.grids.Resume(ctx, req.User, req.Symbol)
	if err != nil {
		return nil, err
	}
	return &api.GridResumeResponse{Grid: toGridStatus(st)}, nil
}

func (s *Server) doGridStatus(ctx context.Context, req *api.GridStatusRequest) (*api.GridStatusResponse, error) {
	if err := checkUser(req.User); err != nil {
		return nil, err
	}
	var grids []*records.GridState
	if req.Symbol != "" {
		st, err := s.grids.Get(ctx, req.User, req.Symbol)
		if err != nil {
			return nil, err
		}
		grids = append(grids, st)
	} else {
		vs, err := s.grids.List(ctx, req.User)
		if err != nil {
			return nil, err
		}
		grids = vs
	}
	resp := new(api.GridStatusResponse)
	for _, st := range grids {
		resp.Grids = append(resp.Grids, toGridStatus(st))
	}
	return resp, nil
}
