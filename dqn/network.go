package dqn

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// network is a fully connected feed forward network.
// Hidden layers use ReLU, the output layer is linear.
type network struct {
	sizes   []int
	weights []*mat.Dense // sizes[i] x sizes[i+1]
	biases  []*mat.VecDense
}

func newNetwork(sizes []int, src *rand.Rand) *network {
	n := &network{
		sizes:   append([]int(nil), sizes...),
		weights: make([]*mat.Dense, len(sizes)-1),
		biases:  make([]*mat.VecDense, len(sizes)-1),
	}
	n.init(src)
	return n
}

// init draws weights uniformly in +-sqrt(6/(in+out)), biases start at zero
func (n *network) init(src *rand.Rand) {
	for i := 0; i < len(n.sizes)-1; i++ {
		in, out := n.sizes[i], n.sizes[i+1]
		limit := math.Sqrt(6.0 / float64(in+out))
		data := make([]float64, in*out)
		for j := range data {
			data[j] = (src.Float64()*2 - 1) * limit
		}
		n.weights[i] = mat.NewDense(in, out, data)
		n.biases[i] = mat.NewVecDense(out, nil)
	}
}

// forward returns the activations of every layer, the input included.
// The last element is the output (batch x actions).
func (n *network) forward(inputs *mat.Dense) []*mat.Dense {
	activations := []*mat.Dense{inputs}
	a := inputs
	for i, w := range n.weights {
		b := n.biases[i]
		last := i == len(n.weights)-1

		z := new(mat.Dense)
		z.Mul(a, w)
		z.Apply(func(_, j int, v float64) float64 {
			v += b.AtVec(j)
			if !last {
				return relu(v)
			}
			return v
		}, z)
		activations = append(activations, z)
		a = z
	}
	return activations
}

// predict the output for a single input
func (n *network) predict(input []float64) []float64 {
	x := mat.NewDense(1, len(input), append([]float64(nil), input...))
	acts := n.forward(x)
	return mat.Row(nil, 0, acts[len(acts)-1])
}

// backward applies one gradient descent step given the activations of
// a forward pass and the gradient of the loss w.r.t. the output
func (n *network) backward(activations []*mat.Dense, grad *mat.Dense, learningRate float64) {
	batch, _ := grad.Dims()
	scale := learningRate / float64(batch)

	delta := mat.DenseCopyOf(grad)
	for i := len(n.weights) - 1; i >= 0; i-- {
		input := activations[i]

		dW := new(mat.Dense)
		dW.Mul(input.T(), delta)

		_, cols := delta.Dims()
		dB := make([]float64, cols)
		for j := 0; j < cols; j++ {
			dB[j] = mat.Sum(delta.ColView(j))
		}

		if i > 0 {
			// propagate with the weights before the update
			prev := new(mat.Dense)
			prev.Mul(delta, n.weights[i].T())
			prev.Apply(func(r, c int, v float64) float64 {
				if input.At(r, c) <= 0 {
					return 0
				}
				return v
			}, prev)
			delta = prev
		}

		dW.Scale(scale, dW)
		n.weights[i].Sub(n.weights[i], dW)
		for j, g := range dB {
			n.biases[i].SetVec(j, n.biases[i].AtVec(j)-scale*g)
		}
	}
}

// copyFrom overwrites the parameters with the ones of other
func (n *network) copyFrom(other *network) {
	for i := range n.weights {
		n.weights[i].Copy(other.weights[i])
		n.biases[i].CopyVec(other.biases[i])
	}
}

// MarshalBinary encodes the layer sizes followed by every weight matrix and bias vector
func (n *network) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, int64(len(n.sizes))); err != nil {
		return nil, err
	}
	for _, s := range n.sizes {
		if err := binary.Write(buf, binary.LittleEndian, int64(s)); err != nil {
			return nil, err
		}
	}
	for i := range n.weights {
		if _, err := n.weights[i].MarshalBinaryTo(buf); err != nil {
			return nil, errors.Wrapf(err, "failed to encode weights of layer %d", i)
		}
		if _, err := n.biases[i].MarshalBinaryTo(buf); err != nil {
			return nil, errors.Wrapf(err, "failed to encode biases of layer %d", i)
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes parameters written by MarshalBinary.
// The layer sizes must match the ones of the receiver.
func (n *network) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var count int64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return errors.Wrap(err, "failed to decode layer count")
	}
	if int(count) != len(n.sizes) {
		return errors.Errorf("layer count mismatch: expected %d, got %d", len(n.sizes), count)
	}
	for i := range n.sizes {
		var s int64
		if err := binary.Read(r, binary.LittleEndian, &s); err != nil {
			return errors.Wrap(err, "failed to decode layer size")
		}
		if int(s) != n.sizes[i] {
			return errors.Errorf("layer %d size mismatch: expected %d, got %d", i, n.sizes[i], s)
		}
	}
	layers := len(n.sizes) - 1
	weights := make([]*mat.Dense, layers)
	biases := make([]*mat.VecDense, layers)
	for i := 0; i < layers; i++ {
		weights[i] = new(mat.Dense)
		if _, err := weights[i].UnmarshalBinaryFrom(r); err != nil {
			return errors.Wrapf(err, "failed to decode weights of layer %d", i)
		}
		biases[i] = new(mat.VecDense)
		if _, err := biases[i].UnmarshalBinaryFrom(r); err != nil {
			return errors.Wrapf(err, "failed to decode biases of layer %d", i)
		}
	}
	n.weights = weights
	n.biases = biases
	return nil
}

func relu(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}
