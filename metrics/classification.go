package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/itskaykayleigh/goonline/pkg/errors"
)

// logLossEpsilon は確率のクランプに使う下限。
// log(0)の発散を避けるため、確率は [ε, 1-ε] に収める。
const logLossEpsilon = 1e-15

// Accuracy は正解率（完全一致の割合）を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	// 入力検証
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("Accuracy", "empty vector")
	}

	if yPred.Len() != n {
		return 0, errors.NewDimensionError("Accuracy", n, yPred.Len(), 0)
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}

	return float64(correct) / float64(n), nil
}

// LogLoss は二値分類の交差エントロピー損失を計算する。
// yTrue は {0, 1}、p は陽性クラスの予測確率。
// 確率でない値（[0,1]の範囲外）が渡された場合はUnsupportedOperationErrorを返す。
//
// LogLoss = -(1/n) * Σ [y·log(p) + (1-y)·log(1-p)]
func LogLoss(yTrue, p *mat.VecDense) (float64, error) {
	// 入力検証
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("LogLoss", "empty vector")
	}

	if p.Len() != n {
		return 0, errors.NewDimensionError("LogLoss", n, p.Len(), 0)
	}

	var sum float64
	for i := 0; i < n; i++ {
		pi := p.AtVec(i)
		if math.IsNaN(pi) || pi < 0 || pi > 1 {
			return 0, errors.NewUnsupportedOperationError("LogLoss",
				"predictions must be probabilities in [0, 1]")
		}

		// log(0)を避けるためのクランプ
		pi = math.Min(math.Max(pi, logLossEpsilon), 1-logLossEpsilon)

		yi := yTrue.AtVec(i)
		sum += yi*math.Log(pi) + (1-yi)*math.Log(1-pi)
	}

	return -sum / float64(n), nil
}
