package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/gridbalance/core/logger"
	coremetrics "github.com/kilianp07/gridbalance/core/metrics"
	infralogger "github.com/kilianp07/gridbalance/infra/logger"
)

// InfluxSink writes control cycles to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      infralogger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying HTTP resources.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

// RecordCycle writes one control_cycle point and one battery_state point per battery.
func (s *InfluxSink) RecordCycle(res coremetrics.CycleResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(res.Batteries)+1)
	points = append(points, write.NewPointWithMeasurement("control_cycle").
		AddTag("cycle_id", res.CycleID).
		AddTag("auto_battery", res.AutoID).
		AddTag("low_hours", strconv.FormatBool(res.LowHours)).
		AddField("grid_power_w", round3(res.GridUsage)).
		AddField("effective_imbalance_w", round3(res.EffectiveImbalance)).
		AddField("car_intent_w", int64(res.CarIntent)).
		AddField("car_connected", res.CarConnected).
		AddField("auto_sufficient", res.AutoSufficient).
		AddField("duration_ms", round3(res.Duration.Seconds()*1000)).
		SetTime(res.Time))
	for _, b := range res.Batteries {
		points = append(points, write.NewPointWithMeasurement("battery_state").
			AddTag("battery", b.ID).
			AddTag("cycle_id", res.CycleID).
			AddTag("mode", string(b.Mode)).
			AddField("soc", round3(b.Charge)).
			AddField("setpoint_w", int64(b.Setpoint)).
			AddField("effective_power_w", int64(b.EffectivePower)).
			SetTime(res.Time))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordCommand writes a battery_command point.
func (s *InfluxSink) RecordCommand(ev coremetrics.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("battery_command").
		AddTag("battery", ev.BatteryID).
		AddTag("cycle_id", ev.CycleID).
		AddTag("mode", string(ev.Mode)).
		AddTag("success", strconv.FormatBool(ev.Error == "")).
		AddField("power_w", int64(ev.Power)).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		AddField("error", ev.Error).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordDeviceError writes a device_error point.
func (s *InfluxSink) RecordDeviceError(ev coremetrics.DeviceErrorEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("device_error").
		AddTag("device", ev.Device).
		AddTag("op", ev.Op).
		AddField("error", ev.Error).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
