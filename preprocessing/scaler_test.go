package preprocessing

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/itskaykayleigh/goonline/pkg/errors"
)

func TestStandardScaler_FitTransform(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1.0, 10.0,
		2.0, 20.0,
		3.0, 30.0,
		4.0, 40.0,
	})

	scaler := NewStandardScaler()
	XScaled, err := scaler.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform() error = %v", err)
	}

	// 変換後は各特徴量が平均0、標準偏差1になる
	r, c := XScaled.Dims()
	for j := 0; j < c; j++ {
		var sum, sumSq float64
		for i := 0; i < r; i++ {
			v := XScaled.At(i, j)
			sum += v
			sumSq += v * v
		}
		mean := sum / float64(r)
		std := math.Sqrt(sumSq/float64(r) - mean*mean)

		if math.Abs(mean) > 1e-10 {
			t.Errorf("feature %d: mean = %v, want 0", j, mean)
		}
		if math.Abs(std-1.0) > 1e-10 {
			t.Errorf("feature %d: std = %v, want 1", j, std)
		}
	}
}

func TestStandardScaler_TransformDeterministic(t *testing.T) {
	XTrain := mat.NewDense(3, 2, []float64{
		1.0, 5.0,
		2.0, 6.0,
		3.0, 7.0,
	})
	XTest := mat.NewDense(2, 2, []float64{
		1.5, 5.5,
		2.5, 6.5,
	})

	scaler := NewStandardScaler()
	if err := scaler.Fit(XTrain); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	// 同じ入力に対して同じ出力を返す（状態はFitでのみ変わる）
	first, err := scaler.Transform(XTest)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	second, err := scaler.Transform(XTest)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	if !mat.EqualApprox(first, second, 0) {
		t.Error("Transform() is not deterministic for the same fitted scaler")
	}
}

func TestStandardScaler_ZeroVarianceFeature(t *testing.T) {
	// 2列目は定数特徴量
	X := mat.NewDense(3, 2, []float64{
		1.0, 7.0,
		2.0, 7.0,
		3.0, 7.0,
	})

	scaler := NewStandardScaler()
	XScaled, err := scaler.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform() error = %v", err)
	}

	// スケールは1として扱われ、出力は有限値になる
	if scaler.Scale[1] != 1.0 {
		t.Errorf("Scale[1] = %v, want 1.0", scaler.Scale[1])
	}
	r, _ := XScaled.Dims()
	for i := 0; i < r; i++ {
		v := XScaled.At(i, 1)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("XScaled[%d][1] = %v, want finite", i, v)
		}
	}
}

func TestStandardScaler_Refit(t *testing.T) {
	X1 := mat.NewDense(2, 1, []float64{0.0, 2.0})
	X2 := mat.NewDense(2, 1, []float64{10.0, 30.0})

	scaler := NewStandardScaler()
	if err := scaler.Fit(X1); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if err := scaler.Fit(X2); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	// 2回目のFitが前回の統計量を上書きする
	if math.Abs(scaler.Mean[0]-20.0) > 1e-10 {
		t.Errorf("Mean[0] = %v, want 20.0 (last fit wins)", scaler.Mean[0])
	}
}

func TestStandardScaler_Errors(t *testing.T) {
	tests := []struct {
		name    string
		run     func() error
		wantDim bool
	}{
		{
			name: "fit on empty matrix",
			run: func() error {
				return NewStandardScaler().Fit(&mat.Dense{})
			},
		},
		{
			name: "fit on non-finite data",
			run: func() error {
				return NewStandardScaler().Fit(mat.NewDense(2, 2, []float64{1, math.NaN(), 3, 4}))
			},
		},
		{
			name: "transform before fit",
			run: func() error {
				_, err := NewStandardScaler().Transform(mat.NewDense(1, 2, nil))
				return err
			},
		},
		{
			name: "transform with wrong column count",
			run: func() error {
				scaler := NewStandardScaler()
				if err := scaler.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})); err != nil {
					return err
				}
				_, err := scaler.Transform(mat.NewDense(2, 3, nil))
				return err
			},
			wantDim: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if err == nil {
				t.Fatal("expected an error, got nil")
			}
			if tt.wantDim {
				var dimErr *errors.DimensionError
				if !errors.As(err, &dimErr) {
					t.Errorf("error = %v, want *DimensionError", err)
				}
			}
		})
	}
}

func TestStandardScaler_InverseTransformRoundTrip(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		1.0, -4.0,
		2.5, 0.0,
		4.0, 9.0,
	})

	scaler := NewStandardScaler()
	XScaled, err := scaler.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform() error = %v", err)
	}

	XBack, err := scaler.InverseTransform(XScaled)
	if err != nil {
		t.Fatalf("InverseTransform() error = %v", err)
	}

	if !mat.EqualApprox(X, XBack, 1e-10) {
		t.Errorf("InverseTransform() round trip mismatch:\ngot  %v\nwant %v",
			mat.Formatted(XBack), mat.Formatted(X))
	}
}
