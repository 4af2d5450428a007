package linear

import (
	"errors"
	"math"
)

var ErrNoSamples = errors.New("no training samples")

type Options struct {
	Epochs       int
	LearningRate float64
}

type Weights struct {
	Bias         float64   `json:"bias"`
	Coefficients []float64 `json:"coefficients"`
}

type Metrics struct {
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}

// TrainLogistic fits weights by batch gradient descent. Labels are 0 or 1.
func TrainLogistic(samples [][]float64, labels []float64, opts Options) (Weights, Metrics, error) {
	if opts.Epochs <= 0 {
		opts.Epochs = 300
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.1
	}
	if len(samples) == 0 {
		return Weights{}, Metrics{}, ErrNoSamples
	}
	if len(samples) != len(labels) {
		return Weights{}, Metrics{}, errors.New("samples and labels differ in length")
	}

	n := float64(len(samples))
	width := len(samples[0])
	w := Weights{Coefficients: make([]float64, width)}
	grad := make([]float64, width)

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		var biasGrad float64
		for i, sample := range samples {
			residual := Predict(w, sample) - labels[i]
			for j := 0; j < width; j++ {
				grad[j] += residual * sample[j]
			}
			biasGrad += residual
		}
		for j := range w.Coefficients {
			w.Coefficients[j] -= opts.LearningRate * grad[j] / n
		}
		w.Bias -= opts.LearningRate * biasGrad / n
	}

	return w, evaluate(w, samples, labels), nil
}

func Predict(w Weights, sample []float64) float64 {
	return sigmoid(dot(w.Coefficients, sample) + w.Bias)
}

func dot(coefficients []float64, sample []float64) float64 {
	var sum float64
	for i := 0; i < len(coefficients) && i < len(sample); i++ {
		sum += coefficients[i] * sample[i]
	}
	return sum
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func evaluate(w Weights, samples [][]float64, labels []float64) Metrics {
	var loss float64
	var correct int
	for i, sample := range samples {
		p := Predict(w, sample)
		loss += -labels[i]*math.Log(p+1e-9) - (1-labels[i])*math.Log(1-p+1e-9)
		if (p >= 0.5) == (labels[i] == 1) {
			correct++
		}
	}
	n := float64(len(samples))
	return Metrics{Loss: loss / n, Accuracy: float64(correct) / n}
}
