package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
)

// ESServer answers ES.GetMode and ES.SetMode requests for one Battery.
type ESServer struct {
	Battery *Battery
	conn    *net.UDPConn
	// drop discards this many incoming requests before answering.
	drop     atomic.Int32
	requests atomic.Int32
}

// ListenES binds a UDP socket on addr, e.g. "127.0.0.1:0".
func ListenES(addr string, b *Battery) (*ESServer, error) {
	ua, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", ua)
	if err != nil {
		return nil, err
	}
	return &ESServer{Battery: b, conn: conn}, nil
}

// Addr returns the bound address.
func (s *ESServer) Addr() string { return s.conn.LocalAddr().String() }

// Drop makes the server ignore the next n requests.
func (s *ESServer) Drop(n int) { s.drop.Store(int32(n)) }

// Requests returns the number of datagrams received.
func (s *ESServer) Requests() int { return int(s.requests.Load()) }

// Serve answers requests until ctx is done.
func (s *ESServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()
	buf := make([]byte, 65535)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.requests.Add(1)
		if s.drop.Load() > 0 {
			s.drop.Add(-1)
			continue
		}
		reply := s.handle(buf[:n])
		if reply == nil {
			continue
		}
		if _, err := s.conn.WriteToUDP(reply, from); err != nil {
			return err
		}
	}
}

type esRequest struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params struct {
		Config struct {
			Mode      string `json:"mode"`
			ManualCfg struct {
				Power float64 `json:"power"`
			} `json:"manual_cfg"`
		} `json:"config"`
	} `json:"params"`
}

func (s *ESServer) handle(pkt []byte) []byte {
	var req esRequest
	if err := json.Unmarshal(pkt, &req); err != nil {
		return []byte("not json")
	}
	var result any
	switch req.Method {
	case "ES.GetMode":
		soc, mode, flow := s.Battery.Snapshot()
		result = map[string]any{
			"id":            0,
			"mode":          mode,
			"bat_soc":       soc,
			"ongrid_power":  flow,
			"offgrid_power": 0,
		}
	case "ES.SetMode":
		if req.Params.Config.Mode == "Auto" {
			s.Battery.SetAuto()
		} else {
			s.Battery.SetManual(req.Params.Config.ManualCfg.Power)
		}
		result = map[string]any{"id": 0, "set_result": true}
	default:
		out, _ := json.Marshal(map[string]any{
			"id":    req.ID,
			"error": map[string]any{"code": -32601, "message": "method not found"},
		})
		return out
	}
	out, _ := json.Marshal(map[string]any{"id": req.ID, "result": result})
	return out
}
