// Package cartpole simulates the classic cart-pole balancing task
// with the dynamics and termination rules of CartPole-v0.
package cartpole

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zeu5/dqn-cartpole/types"
	"golang.org/x/exp/rand"
)

const (
	Gravity    = 9.8
	MassCart   = 1.0
	MassPole   = 0.1
	TotalMass  = MassPole + MassCart
	Length     = 0.5 // half the pole length
	PoleMoment = MassPole * Length
	ForceMag   = 10.0
	Tau        = 0.02 // seconds between state updates

	// episode fails when the pole leans more than 12 degrees
	ThetaThreshold = 12 * 2 * math.Pi / 360
	XThreshold     = 2.4

	PushLeft  types.Action = 0
	PushRight types.Action = 1
)

// Renderer draws a state, the environment calls it on Render
type Renderer interface {
	Render(types.State) error
}

// EpisodeRenderer is notified by Reset that a new episode starts
type EpisodeRenderer interface {
	Renderer
	NewEpisode()
}

type Config struct {
	// Seed for the reset noise, 0 picks one from the clock
	Seed     uint64
	Renderer Renderer
	Logger   logrus.FieldLogger
}

// Environment is the cart-pole simulation.
// The state is (x, x_dot, theta, theta_dot).
type Environment struct {
	state    types.State
	spec     *types.EnvSpec
	rand     *rand.Rand
	renderer Renderer
	logger   logrus.FieldLogger

	// steps taken after the episode terminated
	stepsBeyondDone int
	done            bool
}

var _ types.Environment = &Environment{}

func NewEnvironment(config *Config) *Environment {
	if config == nil {
		config = &Config{}
	}
	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	var logger logrus.FieldLogger = logrus.StandardLogger()
	if config.Logger != nil {
		logger = config.Logger
	}

	high := []float64{
		XThreshold * 2,
		math.MaxFloat32,
		ThetaThreshold * 2,
		math.MaxFloat32,
	}
	low := make([]float64, len(high))
	for i, h := range high {
		low[i] = -h
	}
	// the bounds are constants, NewEnvSpec cannot fail on them
	spec, _ := types.NewEnvSpec(low, high, 2)

	return &Environment{
		spec:     spec,
		rand:     rand.New(rand.NewSource(seed)),
		renderer: config.Renderer,
		logger:   logger.WithField("env", "cartpole"),
	}
}

func (e *Environment) Spec() *types.EnvSpec {
	return e.spec
}

// Reset draws every state component uniformly from [-0.05, 0.05]
func (e *Environment) Reset() (types.State, error) {
	e.state = make(types.State, 4)
	for i := range e.state {
		e.state[i] = e.rand.Float64()*0.1 - 0.05
	}
	e.stepsBeyondDone = 0
	e.done = false
	if r, ok := e.renderer.(EpisodeRenderer); ok {
		r.NewEpisode()
	}
	return e.state.Copy(), nil
}

// Step pushes the cart left or right and integrates one Tau with Euler
func (e *Environment) Step(a types.Action) (*types.StepResult, error) {
	if !e.spec.ValidAction(a) {
		return nil, errors.Errorf("invalid action %d", a)
	}
	if e.state == nil {
		return nil, errors.New("step called before reset")
	}

	if e.done {
		if e.stepsBeyondDone == 0 {
			e.logger.Warn("step called after the episode terminated, reset the environment")
		}
		e.stepsBeyondDone++
		return &types.StepResult{
			Observation: e.state.Copy(),
			Reward:      0,
			Done:        true,
			Info:        map[string]interface{}{"steps_beyond_done": e.stepsBeyondDone},
		}, nil
	}

	x, xDot, theta, thetaDot := e.state[0], e.state[1], e.state[2], e.state[3]
	force := ForceMag
	if a == PushLeft {
		force = -ForceMag
	}
	cosTheta := math.Cos(theta)
	sinTheta := math.Sin(theta)

	temp := (force + PoleMoment*thetaDot*thetaDot*sinTheta) / TotalMass
	thetaAcc := (Gravity*sinTheta - cosTheta*temp) /
		(Length * (4.0/3.0 - MassPole*cosTheta*cosTheta/TotalMass))
	xAcc := temp - PoleMoment*thetaAcc*cosTheta/TotalMass

	x = x + Tau*xDot
	xDot = xDot + Tau*xAcc
	theta = theta + Tau*thetaDot
	thetaDot = thetaDot + Tau*thetaAcc
	e.state = types.State{x, xDot, theta, thetaDot}

	e.done = x < -XThreshold || x > XThreshold ||
		theta < -ThetaThreshold || theta > ThetaThreshold

	return &types.StepResult{
		Observation: e.state.Copy(),
		Reward:      1.0,
		Done:        e.done,
		Info:        map[string]interface{}{},
	}, nil
}

// Render hands the current state to the renderer, if any
func (e *Environment) Render() error {
	if e.renderer == nil || e.state == nil {
		return nil
	}
	return e.renderer.Render(e.state)
}

// SetState overrides the simulation state, used to start from a known configuration
func (e *Environment) SetState(s types.State) error {
	if err := e.spec.CheckState(s); err != nil {
		return err
	}
	e.state = s.Copy()
	e.done = false
	e.stepsBeyondDone = 0
	return nil
}
