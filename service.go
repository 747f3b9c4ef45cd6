package main

import (
	"net"
	"net/http"

	"github.com/gorilla/rpc"
	jsonrpc "github.com/gorilla/rpc/json"
	"github.com/rcrowley/go-metrics"

	"github.com/zkao/btc-congestion-manager/recommend"
)

// Service exposes the daemon's local control surface over JSON-RPC,
// read-only except for stop/pause/unpause/setdebug, per SPEC_FULL §5.4.
type Service struct {
	App  *App
	DLog *DebugLog
	Cfg  config
}

func (s *Service) ListenAndServe() error {
	var methods = map[string]string{
		"stop":        "Service.Stop",
		"status":      "Service.Status",
		"estimatefee": "Service.EstimateFee",
		"mindiff":     "Service.MinDiff",
		"pause":       "Service.Pause",
		"unpause":     "Service.Unpause",
		"setdebug":    "Service.SetDebug",
		"config":      "Service.Config",
		"metrics":     "Service.Metrics",
	}
	srv := rpc.NewServer()
	srv.RegisterCodec(jsonrpc.NewCodec(), "application/json")
	srv.RegisterService(s, "")
	srv.RegisterCustomNames(methods)
	http.Handle("/", srv)
	addr := net.JoinHostPort(s.Cfg.AppRPC.Host, s.Cfg.AppRPC.Port)
	s.DLog.Logger.Println("RPC server listening on", addr)
	return http.ListenAndServe(addr, nil)
}

func (s *Service) Stop(r *http.Request, args *struct{}, reply *struct{}) error {
	go s.App.Stop()
	return nil
}

func (s *Service) Status(r *http.Request, args *struct{}, reply *map[string]string) error {
	*reply = s.App.Status()
	return nil
}

// EstimateFee returns the fee rate estimate for a given target block. If
// target is 0, returns every available estimate.
func (s *Service) EstimateFee(r *http.Request, args *int, reply *interface{}) error {
	if *args == 0 {
		out := make(map[int]float64)
		for _, target := range s.Cfg.Targets {
			if e, err := s.App.EstimateFee(target); err == nil {
				out[target] = e.FeeRate
			}
		}
		*reply = out
		return nil
	}
	e, err := s.App.EstimateFee(*args)
	if err != nil {
		return err
	}
	*reply = e.FeeRate
	return nil
}

func (s *Service) MinDiff(r *http.Request, args *struct{}, reply *[]recommend.RankedEntry) error {
	*reply = s.App.MinDiff()
	return nil
}

func (s *Service) Pause(r *http.Request, args *struct{}, reply *struct{}) error {
	s.App.Pause(true)
	return nil
}

func (s *Service) Unpause(r *http.Request, args *struct{}, reply *struct{}) error {
	s.App.Pause(false)
	return nil
}

func (s *Service) SetDebug(r *http.Request, args *bool, reply *bool) error {
	s.DLog.SetDebug(*args)
	*reply = *args
	return nil
}

func (s *Service) Config(r *http.Request, args *struct{}, reply *interface{}) error {
	c := s.Cfg
	// Hide secrets just in case.
	c.RPC.Password = "********"
	*reply = c
	return nil
}

func (s *Service) Metrics(r *http.Request, args *struct{}, reply *metrics.Registry) error {
	*reply = metrics.DefaultRegistry
	return nil
}
