// Package linear_model はオンライン学習向けの線形モデルを提供します。
// 確率的勾配降下法（SGD）による逐次学習を中心に、scikit-learnの
// SGDClassifier / SGDRegressor と互換性のあるAPIを目指しています。
package linear_model

import (
	"math"

	"github.com/itskaykayleigh/goonline/pkg/errors"
)

// Loss は損失関数のインターフェース。
// ValueとDerivはいずれも純粋関数で、内部状態を持たない。
// Derivは生のスコア（dot(weights, features) + intercept）に関する微分を返す。
type Loss interface {
	// Value は損失値を計算する
	Value(prediction, target float64) float64

	// Deriv は生スコアに関する損失の微分を計算する
	Deriv(prediction, target float64) float64

	// Name は損失関数の名前を返す
	Name() string

	// SupportsProba はこの損失が較正された確率を出力できるかどうかを返す
	SupportsProba() bool
}

// HingeLoss はヒンジ損失（マージン最大化、分類用）。
// target は {-1, +1} を仮定する。
type HingeLoss struct{}

// Value は max(0, 1 - target·prediction) を返す
func (HingeLoss) Value(prediction, target float64) float64 {
	return math.Max(0, 1-target*prediction)
}

// Deriv はマージン violation 時に -target、それ以外は 0 を返す。
// margin == 1 の劣勾配は 0 として扱う。
func (HingeLoss) Deriv(prediction, target float64) float64 {
	if target*prediction < 1 {
		return -target
	}
	return 0
}

func (HingeLoss) Name() string        { return "hinge" }
func (HingeLoss) SupportsProba() bool { return false }

// LogisticLoss はロジスティック損失（確率的分類用）。
// target は {-1, +1} を仮定する。シグモイドを通した予測は確率として解釈できる。
type LogisticLoss struct{}

// Value は log(1 + exp(-target·prediction)) を返す。
// オーバーフローを避けるため z の符号で分岐する。
func (LogisticLoss) Value(prediction, target float64) float64 {
	z := target * prediction
	if z > 0 {
		return math.Log1p(math.Exp(-z))
	}
	return -z + math.Log1p(math.Exp(z))
}

// Deriv は -target / (1 + exp(target·prediction)) を返す
func (LogisticLoss) Deriv(prediction, target float64) float64 {
	z := target * prediction
	if z > 0 {
		ez := math.Exp(-z)
		return -target * ez / (1 + ez)
	}
	return -target / (1 + math.Exp(z))
}

func (LogisticLoss) Name() string        { return "log" }
func (LogisticLoss) SupportsProba() bool { return true }

// SquaredLoss は二乗誤差損失（回帰用）
type SquaredLoss struct{}

// Value は 0.5·(prediction - target)² を返す
func (SquaredLoss) Value(prediction, target float64) float64 {
	diff := prediction - target
	return 0.5 * diff * diff
}

// Deriv は (prediction - target) を返す
func (SquaredLoss) Deriv(prediction, target float64) float64 {
	return prediction - target
}

func (SquaredLoss) Name() string        { return "squared" }
func (SquaredLoss) SupportsProba() bool { return false }

// DefaultHuberEpsilon はHuber損失の二乗・線形の切り替え閾値のデフォルト値
const DefaultHuberEpsilon = 0.1

// HuberLoss は残差が小さい領域では二乗、大きい領域では線形となる
// 外れ値に頑健な回帰用損失。|residual| == Epsilon で勾配は連続。
type HuberLoss struct {
	Epsilon float64
}

// NewHuberLoss はデフォルトのepsilonでHuberLossを作成する
func NewHuberLoss() HuberLoss {
	return HuberLoss{Epsilon: DefaultHuberEpsilon}
}

// Value は |r| <= epsilon で 0.5·r²、それ以外で epsilon·(|r| - 0.5·epsilon) を返す
func (h HuberLoss) Value(prediction, target float64) float64 {
	r := prediction - target
	if math.Abs(r) <= h.Epsilon {
		return 0.5 * r * r
	}
	return h.Epsilon * (math.Abs(r) - 0.5*h.Epsilon)
}

// Deriv は |r| <= epsilon で r、それ以外で epsilon·sign(r) を返す
func (h HuberLoss) Deriv(prediction, target float64) float64 {
	r := prediction - target
	if math.Abs(r) <= h.Epsilon {
		return r
	}
	if r > 0 {
		return h.Epsilon
	}
	return -h.Epsilon
}

func (h HuberLoss) Name() string      { return "huber" }
func (HuberLoss) SupportsProba() bool { return false }

// ParseLoss は損失関数名からLossを作成する。
// 未知の名前はValidationErrorを返す。
func ParseLoss(name string) (Loss, error) {
	switch name {
	case "hinge":
		return HingeLoss{}, nil
	case "log":
		return LogisticLoss{}, nil
	case "squared":
		return SquaredLoss{}, nil
	case "huber":
		return NewHuberLoss(), nil
	default:
		return nil, errors.NewValidationError("loss", "unknown loss function", name)
	}
}

// sigmoid はロジスティックシグモイド関数
func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// sign は符号関数（0は0を返す）
func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
