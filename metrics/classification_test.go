package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/itskaykayleigh/goonline/pkg/errors"
)

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name      string
		yTrue     *mat.VecDense
		yPred     *mat.VecDense
		want      float64
		tolerance float64
		wantErr   bool
	}{
		{
			name:      "all correct",
			yTrue:     mat.NewVecDense(4, []float64{0, 1, 2, 1}),
			yPred:     mat.NewVecDense(4, []float64{0, 1, 2, 1}),
			want:      1.0,
			tolerance: 1e-10,
			wantErr:   false,
		},
		{
			name:      "half correct",
			yTrue:     mat.NewVecDense(4, []float64{0, 1, 0, 1}),
			yPred:     mat.NewVecDense(4, []float64{0, 0, 1, 1}),
			want:      0.5,
			tolerance: 1e-10,
			wantErr:   false,
		},
		{
			name:      "none correct",
			yTrue:     mat.NewVecDense(3, []float64{0, 0, 0}),
			yPred:     mat.NewVecDense(3, []float64{1, 1, 1}),
			want:      0.0,
			tolerance: 1e-10,
			wantErr:   false,
		},
		{
			name:      "dimension mismatch",
			yTrue:     mat.NewVecDense(3, []float64{0, 1, 0}),
			yPred:     mat.NewVecDense(2, []float64{0, 1}),
			want:      0.0,
			tolerance: 1e-10,
			wantErr:   true,
		},
		{
			name:      "empty vectors",
			yTrue:     &mat.VecDense{},
			yPred:     &mat.VecDense{},
			want:      0.0,
			tolerance: 1e-10,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Accuracy(tt.yTrue, tt.yPred)

			if (err != nil) != tt.wantErr {
				t.Errorf("Accuracy() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if math.Abs(got-tt.want) > tt.tolerance {
					t.Errorf("Accuracy() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestLogLoss(t *testing.T) {
	tests := []struct {
		name      string
		yTrue     *mat.VecDense
		p         *mat.VecDense
		want      float64
		tolerance float64
		wantErr   bool
	}{
		{
			name:      "confident correct predictions",
			yTrue:     mat.NewVecDense(2, []float64{1, 0}),
			p:         mat.NewVecDense(2, []float64{0.9, 0.1}),
			want:      -math.Log(0.9), // 両サンプルとも -log(0.9)
			tolerance: 1e-10,
			wantErr:   false,
		},
		{
			name:      "uninformative predictions",
			yTrue:     mat.NewVecDense(4, []float64{1, 0, 1, 0}),
			p:         mat.NewVecDense(4, []float64{0.5, 0.5, 0.5, 0.5}),
			want:      math.Log(2),
			tolerance: 1e-10,
			wantErr:   false,
		},
		{
			name:      "extreme probabilities are clamped",
			yTrue:     mat.NewVecDense(2, []float64{1, 0}),
			p:         mat.NewVecDense(2, []float64{1.0, 0.0}),
			want:      -math.Log(1 - 1e-15),
			tolerance: 1e-10,
			wantErr:   false,
		},
		{
			name:    "not probabilities",
			yTrue:   mat.NewVecDense(2, []float64{1, 0}),
			p:       mat.NewVecDense(2, []float64{2.5, -0.3}),
			wantErr: true,
		},
		{
			name:    "dimension mismatch",
			yTrue:   mat.NewVecDense(3, []float64{1, 0, 1}),
			p:       mat.NewVecDense(2, []float64{0.5, 0.5}),
			wantErr: true,
		},
		{
			name:    "empty vectors",
			yTrue:   &mat.VecDense{},
			p:       &mat.VecDense{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LogLoss(tt.yTrue, tt.p)

			if (err != nil) != tt.wantErr {
				t.Errorf("LogLoss() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if math.Abs(got-tt.want) > tt.tolerance {
					t.Errorf("LogLoss() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestLogLoss_NonProbabilityErrorType(t *testing.T) {
	yTrue := mat.NewVecDense(1, []float64{1})
	p := mat.NewVecDense(1, []float64{3.7})

	_, err := LogLoss(yTrue, p)
	if err == nil {
		t.Fatal("expected an error for non-probability input")
	}

	var uoErr *errors.UnsupportedOperationError
	if !errors.As(err, &uoErr) {
		t.Errorf("error = %v, want *UnsupportedOperationError", err)
	}
}
