package battery

import (
	"encoding/json"
	"fmt"

	"github.com/kilianp07/gridbalance/core/device"
	"github.com/kilianp07/gridbalance/core/model"
)

const (
	methodGetMode = "ES.GetMode"
	methodSetMode = "ES.SetMode"
)

type request struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type response struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

type modeResult struct {
	SoC          *float64 `json:"bat_soc"`
	Mode         string   `json:"mode"`
	OngridPower  *float64 `json:"ongrid_power"`
	OffgridPower *float64 `json:"offgrid_power"`
}

type setModeParams struct {
	ID     int        `json:"id"`
	Config modeConfig `json:"config"`
}

type modeConfig struct {
	Mode      string     `json:"mode"`
	AutoCfg   *autoCfg   `json:"auto_cfg,omitempty"`
	ManualCfg *manualCfg `json:"manual_cfg,omitempty"`
}

type autoCfg struct {
	Enable int `json:"enable"`
}

// manualCfg holds a single all-week schedule slot.
type manualCfg struct {
	TimeNum   int    `json:"time_num"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	WeekSet   int    `json:"week_set"`
	Power     int    `json:"power"`
	Enable    int    `json:"enable"`
}

func getModeRequest() request {
	return request{ID: 1, Method: methodGetMode, Params: map[string]int{"id": 0}}
}

func setModeRequest(cmd device.Command, maxPower model.Watts) request {
	cfg := modeConfig{Mode: "Auto", AutoCfg: &autoCfg{Enable: 1}}
	if cmd.Mode != model.ModeAuto {
		cfg = modeConfig{Mode: "Manual", ManualCfg: &manualCfg{
			TimeNum:   1,
			StartTime: "00:00",
			EndTime:   "23:59",
			WeekSet:   127,
			Power:     int(cmd.Power.Clamp(maxPower)),
			Enable:    1,
		}}
	}
	return request{ID: 1, Method: methodSetMode, Params: setModeParams{ID: 0, Config: cfg}}
}

func decodeResponse(pkt []byte) (response, error) {
	var r response
	if err := json.Unmarshal(pkt, &r); err != nil {
		return r, fmt.Errorf("%w: %v", device.ErrInvalidReply, err)
	}
	if r.Error != nil {
		return r, fmt.Errorf("%w: %v", device.ErrInvalidReply, r.Error)
	}
	return r, nil
}

func decodeStatus(id string, pkt []byte) (device.Status, error) {
	r, err := decodeResponse(pkt)
	if err != nil {
		return device.Status{}, err
	}
	if len(r.Result) == 0 {
		return device.Status{}, fmt.Errorf("%w: empty result", device.ErrInvalidReply)
	}
	var res modeResult
	if err := json.Unmarshal(r.Result, &res); err != nil {
		return device.Status{}, fmt.Errorf("%w: %v", device.ErrInvalidReply, err)
	}
	st := device.Status{ID: id, SoC: res.SoC, Mode: res.Mode}
	if res.OngridPower != nil {
		st.OngridPower = *res.OngridPower
	}
	if res.OffgridPower != nil {
		st.OffgridPower = *res.OffgridPower
	}
	return st, nil
}
