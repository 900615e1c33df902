// Package dqn implements a Deep Q-Network learner and its replay memory.
package dqn

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/zeu5/dqn-cartpole/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// inputs with a bound larger than this are passed to the network unscaled
const unboundedLimit = 1e6

// Config contains the hyperparameters of the learner
type Config struct {
	// Hidden layer sizes
	Hidden       []int
	LearningRate float64
	// Gamma is the discount factor (0≤γ≤1)
	Gamma float64

	// Epsilon decays multiplicatively after every update, never below EpsilonMin
	Epsilon      float64
	EpsilonMin   float64
	EpsilonDecay float64

	BatchSize int
	// MemorySize is the capacity of the replay memory
	MemorySize int
	// TargetUpdateSteps determines how often the target network copies the online one
	TargetUpdateSteps int

	// Seed for initialization and exploration, 0 picks one from the clock
	Seed uint64
}

func DefaultConfig() *Config {
	return &Config{
		Hidden:            []int{64},
		LearningRate:      0.001,
		Gamma:             0.99,
		Epsilon:           1.0,
		EpsilonMin:        0.01,
		EpsilonDecay:      0.995,
		BatchSize:         32,
		MemorySize:        10000,
		TargetUpdateSteps: 100,
	}
}

func (c *Config) Validate() error {
	if c.LearningRate <= 0 {
		return errors.Errorf("learning rate must be positive, got %v", c.LearningRate)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return errors.Errorf("gamma must be in [0, 1], got %v", c.Gamma)
	}
	if c.Epsilon < 0 || c.Epsilon > 1 || c.EpsilonMin < 0 || c.EpsilonMin > c.Epsilon {
		return errors.Errorf("invalid epsilon schedule %v -> %v", c.Epsilon, c.EpsilonMin)
	}
	if c.EpsilonDecay <= 0 || c.EpsilonDecay > 1 {
		return errors.Errorf("epsilon decay must be in (0, 1], got %v", c.EpsilonDecay)
	}
	if c.BatchSize <= 0 || c.TargetUpdateSteps <= 0 || c.MemorySize <= 0 {
		return errors.New("batch size, memory size and target update steps must be positive")
	}
	for _, h := range c.Hidden {
		if h <= 0 {
			return errors.Errorf("invalid hidden layer size %d", h)
		}
	}
	return nil
}

func (c *Config) seed() uint64 {
	if c.Seed == 0 {
		return uint64(time.Now().UnixNano())
	}
	return c.Seed
}

// Learner is a dqn agent with an online and a target network
type Learner struct {
	config *Config
	spec   *types.EnvSpec

	online *network
	target *network

	epsilon float64
	updates int
	rand    *rand.Rand
}

var _ types.Learner = &Learner{}
var _ types.Checkpointable = &Learner{}

// NewLearner returns a learner for the environment spec. Parameters are
// drawn by Init.
func NewLearner(spec *types.EnvSpec, config *Config) (*Learner, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	sizes := append([]int{spec.StateDim}, config.Hidden...)
	sizes = append(sizes, spec.ActionDim)

	src := rand.New(rand.NewSource(config.seed()))
	return &Learner{
		config:  config,
		spec:    spec,
		online:  newNetwork(sizes, src),
		target:  newNetwork(sizes, src),
		epsilon: config.Epsilon,
		rand:    src,
	}, nil
}

// NewMemory returns the replay memory sized by the config
func NewMemory(spec *types.EnvSpec, config *Config) (*ReplayMemory, error) {
	if config == nil {
		config = DefaultConfig()
	}
	return NewReplayMemory(spec, config.MemorySize, config.seed()+1)
}

// Init draws fresh parameters and syncs the target network
func (l *Learner) Init() error {
	l.online.init(l.rand)
	l.target.copyFrom(l.online)
	l.epsilon = l.config.Epsilon
	l.updates = 0
	return nil
}

func (l *Learner) Epsilon() float64 {
	return l.epsilon
}

// Updates is the number of training updates performed
func (l *Learner) Updates() int {
	return l.updates
}

// SelectAction explores with probability epsilon, otherwise picks the greedy action
func (l *Learner) SelectAction(state types.State) (types.Action, error) {
	if err := l.spec.CheckState(state); err != nil {
		return 0, err
	}
	if l.rand.Float64() < l.epsilon {
		return l.spec.Actions[l.rand.Intn(l.spec.ActionDim)], nil
	}
	return l.Greedy(state)
}

// Greedy returns the action with the highest Q value
func (l *Learner) Greedy(state types.State) (types.Action, error) {
	if err := l.spec.CheckState(state); err != nil {
		return 0, err
	}
	q := l.online.predict(l.scale(state))
	return l.spec.Actions[floats.MaxIdx(q)], nil
}

// QValues of the online network for the state
func (l *Learner) QValues(state types.State) ([]float64, error) {
	if err := l.spec.CheckState(state); err != nil {
		return nil, err
	}
	return l.online.predict(l.scale(state)), nil
}

// Train samples a batch and fits the online network to the Bellman targets.
// Nothing happens until the memory holds a full batch.
func (l *Learner) Train(memory types.Memory) error {
	if memory.Len() < l.config.BatchSize {
		return nil
	}
	batch, err := memory.Sample(l.config.BatchSize)
	if err != nil {
		return errors.Wrap(err, "failed to sample memory")
	}

	n := len(batch)
	states := mat.NewDense(n, l.spec.StateDim, nil)
	nextStates := mat.NewDense(n, l.spec.StateDim, nil)
	for i, e := range batch {
		states.SetRow(i, l.scale(e.State))
		nextStates.SetRow(i, l.scale(e.NextState))
	}

	activations := l.online.forward(states)
	q := activations[len(activations)-1]
	nextActs := l.target.forward(nextStates)
	nextQ := nextActs[len(nextActs)-1]

	grad := mat.NewDense(n, l.spec.ActionDim, nil)
	for i, e := range batch {
		target := e.Reward
		if !e.Done {
			target += l.config.Gamma * floats.Max(mat.Row(nil, i, nextQ))
		}
		tdErr := q.At(i, int(e.Action)) - target
		if math.IsNaN(tdErr) || math.IsInf(tdErr, 0) {
			return errors.Errorf("diverged: td error %v", tdErr)
		}
		grad.Set(i, int(e.Action), clip(tdErr, 1))
	}
	l.online.backward(activations, grad, l.config.LearningRate)

	l.updates++
	l.epsilon = math.Max(l.config.EpsilonMin, l.epsilon*l.config.EpsilonDecay)
	if l.updates%l.config.TargetUpdateSteps == 0 {
		l.target.copyFrom(l.online)
	}
	return nil
}

// scale maps every bounded dimension to [-1, 1]
func (l *Learner) scale(s types.State) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		b := l.spec.StateBounds[i]
		if math.IsInf(b.Low, 0) || math.IsInf(b.High, 0) ||
			math.Abs(b.Low) > unboundedLimit || math.Abs(b.High) > unboundedLimit || b.High <= b.Low {
			out[i] = v
			continue
		}
		out[i] = 2*(v-b.Low)/(b.High-b.Low) - 1
	}
	return out
}

// MarshalBinary encodes epsilon, the update counter and both networks
func (l *Learner) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, l.epsilon); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, int64(l.updates)); err != nil {
		return nil, err
	}
	for _, n := range []*network{l.online, l.target} {
		bs, err := n.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.LittleEndian, int64(len(bs))); err != nil {
			return nil, err
		}
		buf.Write(bs)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a state written by MarshalBinary
func (l *Learner) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var epsilon float64
	var updates int64
	if err := binary.Read(r, binary.LittleEndian, &epsilon); err != nil {
		return errors.Wrap(err, "failed to decode epsilon")
	}
	if err := binary.Read(r, binary.LittleEndian, &updates); err != nil {
		return errors.Wrap(err, "failed to decode update counter")
	}

	nets := make([]*network, 2)
	for i, n := range []*network{l.online, l.target} {
		var size int64
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return errors.Wrap(err, "failed to decode network size")
		}
		if size < 0 || size > int64(r.Len()) {
			return errors.Errorf("corrupt checkpoint: network size %d", size)
		}
		bs := make([]byte, size)
		if _, err := io.ReadFull(r, bs); err != nil {
			return errors.Wrap(err, "failed to read network")
		}
		decoded := &network{sizes: n.sizes}
		if err := decoded.UnmarshalBinary(bs); err != nil {
			return err
		}
		nets[i] = decoded
	}
	l.epsilon = epsilon
	l.updates = int(updates)
	l.online, l.target = nets[0], nets[1]
	return nil
}

func clip(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
