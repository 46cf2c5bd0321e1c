package simulator

import (
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"time"
)

// Site couples batteries, household load, solar production and an EV
// charger behind a single grid connection.
type Site struct {
	Batteries []*Battery
	LoadW     float64
	SolarW    float64
	CarW      float64

	mu sync.Mutex
}

// GridPower is the signed import measured at the connection point.
func (s *Site) GridPower() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	grid := s.LoadW - s.SolarW + s.CarW
	for _, b := range s.Batteries {
		_, _, flow := b.Snapshot()
		grid += flow
	}
	return grid
}

// Step advances the site by dt. Manual batteries follow their setpoint, the
// automatic ones share the remaining imbalance.
func (s *Site) Step(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	net := s.LoadW - s.SolarW + s.CarW
	var autos []*Battery
	for _, b := range s.Batteries {
		b.mu.Lock()
		if b.Mode == "Manual" {
			net += b.applyLocked(b.ManualPower, dt)
		} else {
			autos = append(autos, b)
		}
		b.mu.Unlock()
	}
	for _, b := range autos {
		b.mu.Lock()
		net += b.applyLocked(-net, dt)
		b.mu.Unlock()
	}
}

// SetLoad updates household consumption and solar production.
func (s *Site) SetLoad(loadW, solarW float64) {
	s.mu.Lock()
	s.LoadW, s.SolarW = loadW, solarW
	s.mu.Unlock()
}

// SolarProfile returns a clear-sky production estimate for the hour of t.
func SolarProfile(t time.Time, peakW float64) float64 {
	h := float64(t.Hour()) + float64(t.Minute())/60
	if h < 6 || h > 20 {
		return 0
	}
	return peakW * math.Sin((h-6)/14*math.Pi)
}

// P1Handler serves the HomeWizard /api/v1/data endpoint for s.
func P1Handler(s *Site) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/data", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"wifi_strength":  100,
			"active_power_w": s.GridPower(),
		})
	})
	return mux
}
