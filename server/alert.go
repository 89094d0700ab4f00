// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"time"

	"github.com/bvk/gridbot/alert"
	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/records"
)

func toAlertRule(r *records.AlertRule) *api.AlertRule {
	return &api.AlertRule{
		ID:            r.ID,
		User:          r.User,
		Symbol:        r.Symbol,
		Metric:        r.Metric,
		Comparison:    r.Comparison,
		Threshold:     r.Threshold,
		Cooldown:      time.Duration(r.Cooldown),
		Enabled:       r.Enabled,
		Note:          r.Note,
		CreateTime:    r.CreateTime,
		LastTriggered: r.LastTriggered,
		TriggerCount:  r.TriggerCount,
	}
}

func (s *Server) doAlertCreate(ctx context.Context, req *api.AlertCreateRequest) (*api.AlertCreateResponse, error) {
	metric, err := alert.ParseMetric(req.Metric)
	if err != nil {
		return nil, err
	}
	cmp, err := alert.ParseComparison(req.Comparison)
	if err != nil {
		return nil, err
	}
	rule, err := s.alerts.Create(ctx, &alert.CreateRequest{
		User:       req.User,
		Symbol:     req.Symbol,
		Metric:     metric,
		Comparison: cmp,
		Threshold:  req.Threshold,
		Cooldown:   req.Cooldown,
		Note:       req.Note,
	})
	if err != nil {
		return nil, err
	}
	return &api.AlertCreateResponse{Rule: toAlertRule(rule)}, nil
}

func (s *Server) doAlertDelete(ctx context.Context, req *api.AlertDeleteRequest) (*api.AlertDeleteResponse, error) {
	if err := checkUser(req.User); err != nil {
		return nil, err
	}
	rule, err := s.alerts.Delete(ctx, req.User, req.RuleID)
	if err != nil {
		return nil, err
	}
	return &api.AlertDeleteResponse{Rule: toAlertRule(rule)}, nil
}

func (s *Server) doAlertList(ctx context.Context, req *api.AlertListRequest) (*api.AlertListResponse, error) {
	if err := checkUser(req.User); err != nil {
		return nil, err
	}
	rules, err := s.alerts.List(ctx, req.User, req.Symbol)
	if err != nil {
		return nil, err
	}
	resp := new(api.AlertListResponse)
	for _, r := range rules {
		resp.Rules = append(resp.Rules, toAlertRule(r))
	}
	return resp, nil
}

func (s *Server) doAlertEnable(ctx context.Context, req *api.AlertEnableRequest) (*api.AlertEnableResponse, error) {
	if err := checkUser(req.User); err != nil {
		return nil, err
	}
	rule, err := s.alerts.SetEnabled(ctx, req.User, req.RuleID, req.Enabled)
	if err != nil {
		return nil, err
	}
	return &api.AlertEnableResponse{Rule: toAlertRule(rule)}, nil
}

func (s *Server) doAlertHistory(ctx context.Context, req *api.AlertHistoryRequest) (*api.AlertHistoryResponse, error) {
	if err := checkUser(req.User); err != nil {
		return nil, err
	}
	events, err := s.alerts.History(ctx, req.User, req.Limit)
	if err != nil {
		return nil, err
	}
	resp := new(api.AlertHistoryResponse)
	for _, ev := range events {
		resp.Events = append(resp.Events, &api.AlertEvent{
			RuleID:  ev.RuleID,
			Symbol:  ev.Symbol,
			Value:   ev.Value,
			Message: ev.Message,
			Time:    ev.Time,
		})
	}
	return resp, nil
}
