package model

import "gonum.org/v1/gonum/mat"

// IncrementalEstimator はオンライン学習（逐次学習）可能なモデルのインターフェース
// scikit-learnのpartial_fit APIと互換性を持つ
type IncrementalEstimator interface {
	Estimator

	// PartialFit はミニバッチでモデルを逐次的に学習させる
	// 観測ごとに1回のSGDステップを実行する
	PartialFit(X, y mat.Matrix) error

	// NIterations は実行された学習エポック数を返す
	NIterations() int

	// NSteps は実行されたSGDステップ総数（観測数）を返す
	NSteps() int64
}

// OnlineMetrics はオンライン学習中のメトリクスを追跡するインターフェース
type OnlineMetrics interface {
	// GetLoss は現在の損失値を返す
	GetLoss() float64

	// GetLossHistory はエポックごとの平均損失の履歴を返す
	GetLossHistory() []float64

	// GetConverged は収束したかどうかを返す
	GetConverged() bool
}

// AdaptiveLearning は学習率を動的に調整できるモデルのインターフェース
type AdaptiveLearning interface {
	// GetLearningRate は現在の学習率を返す
	GetLearningRate() float64

	// SetLearningRate は初期学習率を設定する
	SetLearningRate(lr float64)

	// GetLearningRateSchedule は学習率スケジュールを返す
	// "constant", "optimal", "invscaling" のいずれか
	GetLearningRateSchedule() string
}
