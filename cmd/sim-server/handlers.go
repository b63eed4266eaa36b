package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/samber/lo"

	"github.com/signalsfoundry/traffic-simulator/internal/logging"
	"github.com/signalsfoundry/traffic-simulator/internal/scoring"
	"github.com/signalsfoundry/traffic-simulator/internal/sim/state"
	"github.com/signalsfoundry/traffic-simulator/model"
)

type vehicleView struct {
	ID          int     `json:"id"`
	State       string  `json:"state"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Heading     float64 `json:"heading"`
	Speed       float64 `json:"speed"`
	Road        int     `json:"road"`
	Lane        int     `json:"lane"`
	Destination int     `json:"destination"`
	Yielding    bool    `json:"yielding"`
	Happiness   float64 `json:"happiness"`
}

type signalView struct {
	Junction int      `json:"junction"`
	Name     string   `json:"name"`
	Pattern  string   `json:"pattern"`
	State    string   `json:"state"`
	Roads    []int    `json:"roads"`
	Colors   []string `json:"colors"`
}

type scoreView struct {
	Score          int     `json:"score"`
	Bonus          int     `json:"bonus"`
	Total          int     `json:"total"`
	Trips          int     `json:"trips"`
	AverageSpeed   float64 `json:"average_speed"`
	Grade          string  `json:"grade"`
	Spawned        int     `json:"spawned"`
	Arrived        int     `json:"arrived"`
	Active         int     `json:"active"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

type toggleView struct {
	Junction int  `json:"junction"`
	Queued   bool `json:"queued"`
}

// api serves read-only views of a running simulation plus the toggle
// endpoint that stands in for the player.
type api struct {
	sim   *state.Simulation
	board *scoring.Scoreboard
	log   logging.Logger
}

func (a *api) routes(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	mux.HandleFunc("GET /vehicles", a.vehicles)
	mux.HandleFunc("GET /signals", a.signals)
	mux.HandleFunc("POST /signals/{junction}/toggle", a.toggle)
	mux.HandleFunc("GET /score", a.score)
	return logging.RequestLogger(a.log, mux)
}

func (a *api) logger(r *http.Request) logging.Logger {
	return logging.FromContext(r.Context(), a.log)
}

func (a *api) vehicles(w http.ResponseWriter, r *http.Request) {
	views := lo.Map(a.sim.Vehicles(), func(v state.VehicleSnapshot, _ int) vehicleView {
		return vehicleView{
			ID:          int(v.ID),
			State:       v.State.String(),
			X:           v.Position.X,
			Y:           v.Position.Y,
			Heading:     v.Heading,
			Speed:       v.Speed,
			Road:        int(v.Road),
			Lane:        v.Lane,
			Destination: int(v.Destination),
			Yielding:    v.Yielding,
			Happiness:   v.HappinessRatio,
		}
	})
	a.writeJSON(w, r, http.StatusOK, views)
}

func (a *api) signals(w http.ResponseWriter, r *http.Request) {
	views := lo.Map(a.sim.Signals(), func(s state.SignalSnapshot, _ int) signalView {
		return signalView{
			Junction: int(s.Junction),
			Name:     s.Name,
			Pattern:  s.Pattern.String(),
			State:    s.State.String(),
			Roads:    lo.Map(s.Roads, func(id model.RoadID, _ int) int { return int(id) }),
			Colors:   lo.Map(s.Colors, func(c model.LightColor, _ int) string { return c.String() }),
		}
	})
	a.writeJSON(w, r, http.StatusOK, views)
}

// toggle accepts a junction handle or name.
func (a *api) toggle(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("junction")
	id, ok := a.resolveJunction(key)
	if !ok {
		http.Error(w, "unknown junction "+strconv.Quote(key), http.StatusNotFound)
		return
	}
	err := a.sim.RequestToggle(id)
	switch {
	case errors.Is(err, state.ErrNoSignal):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	a.logger(r).Info(r.Context(), "toggle requested", logging.String("junction", key))
	a.writeJSON(w, r, http.StatusAccepted, toggleView{Junction: int(id), Queued: true})
}

func (a *api) score(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, r, http.StatusOK, scoreView{
		Score:          a.board.Score(),
		Bonus:          a.board.Bonus(),
		Total:          a.board.Total(),
		Trips:          a.board.Trips(),
		AverageSpeed:   a.board.AverageSpeed(),
		Grade:          a.board.Grade(),
		Spawned:        a.sim.Spawned(),
		Arrived:        a.sim.Arrived(),
		Active:         a.sim.ActiveVehicles(),
		ElapsedSeconds: a.sim.Elapsed().Seconds(),
	})
}

func (a *api) resolveJunction(key string) (model.JunctionID, bool) {
	n := a.sim.Network()
	if id, err := strconv.Atoi(key); err == nil {
		return model.JunctionID(id), n.Junction(model.JunctionID(id)) != nil
	}
	j, ok := n.JunctionByName(key)
	if !ok {
		return model.NoJunction, false
	}
	return j.ID, true
}

func (a *api) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger(r).Warn(r.Context(), "encode response failed", logging.Err(err))
	}
}
