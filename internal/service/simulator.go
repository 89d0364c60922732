package service

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"plant_monitor/internal/broker"
	"plant_monitor/internal/config"
	"plant_monitor/internal/logger"
	"plant_monitor/internal/metrics"
	"plant_monitor/internal/models"
)

// Machine modes.
const (
	ModeNormal  = "normal"
	ModeFaulty  = "faulty"
	ModeOffline = "offline"
)

// Fault drift directions.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// machineState is the in-memory runtime of one simulated machine. It is
// touched only by that machine's generator goroutine and is reseeded
// from scratch on every process start.
type machineState struct {
	values         map[string]float64
	mode           string
	faultDirection string
	faultyParams   map[string]bool
	transitioning  bool
	lastChange     time.Time
}

// SimulatorService produces synthetic readings for a fleet of machines
// and publishes them to the broker. Generation and publishing are
// decoupled by a bounded queue; a full queue blocks generators rather
// than dropping readings.
type SimulatorService struct {
	cfg     config.Simulator
	pub     Publisher
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewSimulatorService returns a simulator for the configured fleet.
func NewSimulatorService(cfg config.Simulator, pub Publisher, m *metrics.Metrics, log *logger.Logger) *SimulatorService {
	return &SimulatorService{cfg: cfg, pub: pub, metrics: m, log: log}
}

// Run starts one generator goroutine per machine and drains the shared
// queue onto the broker until ctx is canceled.
func (s *SimulatorService) Run(ctx context.Context) {
	queue := make(chan models.Reading, s.cfg.QueueSize)

	var wg sync.WaitGroup
	for plant := 1; plant <= s.cfg.Plants; plant++ {
		for machine := 1; machine <= s.cfg.MachinesPerPlant; machine++ {
			key := models.MachineKey{PlantID: plant, MachineID: machine}
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.runMachine(ctx, key, queue)
			}()
		}
	}
	go func() {
		wg.Wait()
		close(queue)
	}()

	for r := range queue {
		s.metrics.SimulatorQueue.Set(float64(len(queue)))
		payload, err := json.Marshal(r)
		if err != nil {
			s.log.Errorw("simulator_marshal_failed", "err", err)
			continue
		}
		topic := broker.MachineTopic(r.PlantID, r.MachineID)
		if err := s.pub.Publish(ctx, topic, payload); err != nil {
			s.log.Errorw("simulator_publish_failed", "topic", topic, "err", err)
			continue
		}
		s.metrics.ReadingsPublished.Inc()
	}
}

// runMachine ticks one machine until ctx is canceled.
func (s *SimulatorService) runMachine(ctx context.Context, key models.MachineKey, queue chan<- models.Reading) {
	seed := time.Now().UnixNano() + int64(key.PlantID)*1_000_003 + int64(key.MachineID)
	rng := rand.New(rand.NewSource(seed))
	st := s.newMachineState(rng, time.Now())

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.advance(st, now, rng)
			select {
			case queue <- s.reading(st, key, now):
			case <-ctx.Done():
				return
			}
		}
	}
}

// newMachineState seeds all parameters uniformly within normal range.
func (s *SimulatorService) newMachineState(rng *rand.Rand, now time.Time) *machineState {
	st := &machineState{
		values:       make(map[string]float64, len(models.Parameters)),
		mode:         ModeNormal,
		faultyParams: make(map[string]bool),
		lastChange:   now,
	}
	s.reseedValues(st, rng)
	return st
}

func (s *SimulatorService) reseedValues(st *machineState, rng *rand.Rand) {
	for _, p := range models.Parameters {
		nr := s.cfg.NormalRange[p]
		st.values[p] = nr.Lower + rng.Float64()*(nr.Upper-nr.Lower)
	}
}

// advance applies one tick: state transition, then per-parameter update.
func (s *SimulatorService) advance(st *machineState, now time.Time, rng *rand.Rand) {
	s.transition(st, now, rng)
	s.updateValues(st, rng)
}

// transition mutates the machine mode. Entering faulty or offline is
// gated on the dwell time since the last transition; recovery checks
// only the probability.
func (s *SimulatorService) transition(st *machineState, now time.Time, rng *rand.Rand) {
	switch st.mode {
	case ModeNormal:
		if now.Sub(st.lastChange) < s.cfg.MinDwell {
			return
		}
		if rng.Float64() < s.cfg.FaultProbability {
			st.mode = ModeFaulty
			st.lastChange = now
			if rng.Float64() < 0.5 {
				st.faultDirection = DirectionUp
			} else {
				st.faultDirection = DirectionDown
			}
			st.faultyParams = randomParamSubset(rng)
		} else if rng.Float64() < s.cfg.OfflineProbability {
			st.mode = ModeOffline
			st.lastChange = now
		}
	case ModeFaulty:
		if rng.Float64() < s.cfg.RecoveryFromFaulty {
			st.mode = ModeNormal
			st.transitioning = true
			st.faultDirection = ""
			st.faultyParams = make(map[string]bool)
			st.lastChange = now
		}
	case ModeOffline:
		if rng.Float64() < s.cfg.RecoveryFromOffline {
			st.mode = ModeNormal
			st.lastChange = now
			s.reseedValues(st, rng)
		}
	}
}

// updateValues moves each parameter one step. Offline machines hold
// their last values; the status field alone signals the outage.
func (s *SimulatorService) updateValues(st *machineState, rng *rand.Rand) {
	switch st.mode {
	case ModeOffline:
		return
	case ModeFaulty:
		for _, p := range models.Parameters {
			if st.faultyParams[p] {
				st.values[p] = s.driftOutOfBounds(p, st.values[p], st.faultDirection, rng)
			} else {
				st.values[p] = s.fluctuateInNormalRange(p, st.values[p], rng)
			}
		}
	default: // normal
		if !st.transitioning {
			for _, p := range models.Parameters {
				st.values[p] = s.fluctuateInNormalRange(p, st.values[p], rng)
			}
			return
		}
		allInside := true
		for _, p := range models.Parameters {
			if s.cfg.NormalRange[p].Contains(st.values[p]) {
				st.values[p] = s.fluctuateInNormalRange(p, st.values[p], rng)
			} else {
				st.values[p] = s.driftBackToNormal(p, st.values[p], rng)
			}
			if !s.cfg.NormalRange[p].Contains(st.values[p]) {
				allInside = false
			}
		}
		if allInside {
			st.transitioning = false
		}
	}
}

// fluctuateInNormalRange applies a small random delta clamped to the
// normal range.
func (s *SimulatorService) fluctuateInNormalRange(param string, v float64, rng *rand.Rand) float64 {
	nr := s.cfg.NormalRange[param]
	d := s.cfg.NormalDrift[param]
	next := v + d.Lower + rng.Float64()*(d.Upper-d.Lower)
	return clamp(next, nr.Lower, nr.Upper)
}

// driftOutOfBounds pushes a faulty parameter toward the faulty bound in
// the chosen direction.
func (s *SimulatorService) driftOutOfBounds(param string, v float64, direction string, rng *rand.Rand) float64 {
	fr := s.cfg.FaultyRange[param]
	d := s.cfg.FaultyDrift[param]
	drift := d.Lower + rng.Float64()*(d.Upper-d.Lower)
	if direction == DirectionUp {
		return minFloat(v+drift, fr.Upper)
	}
	return maxFloat(v-drift, fr.Lower)
}

// driftBackToNormal steps a recovering parameter toward the normal
// range; once inside, fluctuation takes over on the next tick.
func (s *SimulatorService) driftBackToNormal(param string, v float64, rng *rand.Rand) float64 {
	nr := s.cfg.NormalRange[param]
	d := s.cfg.FaultyDrift[param]
	drift := d.Lower + rng.Float64()*(d.Upper-d.Lower)
	switch {
	case v < nr.Lower:
		return v + drift
	case v > nr.Upper:
		return v - drift
	}
	return v
}

// reading snapshots the state as a wire reading.
func (s *SimulatorService) reading(st *machineState, key models.MachineKey, now time.Time) models.Reading {
	status := models.StatusOnline
	if st.mode == ModeOffline {
		status = models.StatusOffline
	}
	r := models.Reading{
		Timestamp:     now.UTC(),
		PlantID:       key.PlantID,
		MachineID:     key.MachineID,
		MachineStatus: status,
	}
	for _, p := range models.Parameters {
		r.SetValue(p, st.values[p])
	}
	return r
}

// randomParamSubset picks a non-empty random subset of the tracked
// parameters.
func randomParamSubset(rng *rand.Rand) map[string]bool {
	n := rng.Intn(len(models.Parameters)) + 1
	out := make(map[string]bool, n)
	for _, i := range rng.Perm(len(models.Parameters))[:n] {
		out[models.Parameters[i]] = true
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a >= b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a <= b {
		return a
	}
	return b
}
