package sim

import (
	"barsim/internal/data"
	"barsim/internal/errors"
	"barsim/internal/models"
)

// Env is the step interface strategies and RL adapters drive. Each
// Step replays exactly one trading timestamp; state mutation happens
// nowhere else.
type Env struct {
	sim  *Simulation
	exec executor
	done bool
}

// NewEnv creates an environment with same-bar reward semantics: the
// reward of Step(action) is the daily return settled on the bar the
// action traded in.
func NewEnv(opts Options) (*Env, error) {
	s, err := newSimulation(opts, false)
	if err != nil {
		return nil, err
	}
	return &Env{sim: s, exec: newSameBarExecutor(s)}, nil
}

// NewRLEnv creates an environment with forward-bar reward semantics:
// the reward of Step(action) is the mark-to-market move observed at
// the next bar, the usual RL convention.
func NewRLEnv(opts Options) (*Env, error) {
	s, err := newSimulation(opts, true)
	if err != nil {
		return nil, err
	}
	return &Env{sim: s, exec: newForwardBarExecutor(s)}, nil
}

// Simulation exposes the underlying run object.
func (e *Env) Simulation() *Simulation { return e.sim }

// Reset returns the initial observation. Replay state is never
// rewound; to restart a finished run, construct a new Env.
func (e *Env) Reset() data.Window {
	return e.sim.HistoryWindow()
}

// Step submits the action's orders on the current bar, replays the
// bar's full phase cycle, and returns the next observation, the
// reward, whether the run is finished, and the step diagnostics. A
// nil action submits nothing. Stepping a finished environment is an
// error, as is any configuration mistake surfaced during the replay.
func (e *Env) Step(action []*models.Order) (data.Window, float64, bool, StepInfo, error) {
	if e.done {
		return data.Window{}, 0, true, StepInfo{}, errors.ErrSimulationDone
	}
	e.sim.tracker.BeginStep()

	reward, done, info := e.exec.Send(action)
	e.done = done

	if err := e.sim.strategy.takeErr(); err != nil {
		return data.Window{}, 0, e.done, info, err
	}
	if err := e.sim.broker.Err(); err != nil {
		return data.Window{}, 0, e.done, info, err
	}
	return e.sim.HistoryWindow(), reward, done, info, nil
}
