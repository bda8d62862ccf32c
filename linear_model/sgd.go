package linear_model

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/itskaykayleigh/goonline/core/model"
	"github.com/itskaykayleigh/goonline/pkg/errors"
)

// 学習率スケジュールの名前
const (
	ScheduleConstant   = "constant"
	ScheduleOptimal    = "optimal"
	ScheduleInvScaling = "invscaling"
)

// 正則化の名前
const (
	PenaltyNone       = "none"
	PenaltyL1         = "l1"
	PenaltyL2         = "l2"
	PenaltyElasticNet = "elasticnet"
)

// sgdWeightsVersion はModelWeightsスナップショットのフォーマットバージョン
const sgdWeightsVersion = "1"

// SGDModel は確率的勾配降下法で学習するオンライン線形モデル。
// 1観測ごとに1回のSGDステップ（O(D)）で重みベクトルを更新する。
// 重みベクトルはこのインスタンスが排他的に所有し、更新の途中状態が
// 外部から観測されることはない。
type SGDModel struct {
	model.BaseEstimator

	// ハイパーパラメータ
	loss         Loss    // 損失関数
	penalty      string  // 正則化: "none", "l1", "l2", "elasticnet"
	alpha        float64 // 正則化の強度
	l1Ratio      float64 // Elastic NetのL1比率
	fitIntercept bool    // 切片を学習するか
	learningRate string  // 学習率スケジュール: "constant", "optimal", "invscaling"
	eta0         float64 // 初期学習率
	powerT       float64 // invscalingの指数
	shuffle      bool    // 各エポックでデータをシャッフルするか
	randomState  int64   // 乱数シード
	tol          float64 // 収束判定の許容誤差

	// 学習パラメータ
	coef_      []float64 // 重み係数（ゼロで初期化）
	intercept_ float64   // 切片

	// 学習状態
	nFeatures_   int       // 特徴量の数
	nIter_       int       // 実行されたエポック数
	t_           int64     // SGDステップ総数（学習率スケジュールの状態）
	lossHistory_ []float64 // エポックごとの平均損失
	converged_   bool      // 収束フラグ

	// 内部状態
	mu sync.RWMutex
}

// インターフェース実装の静的チェック
var (
	_ model.StreamingEstimator = (*SGDModel)(nil)
	_ model.LinearModel        = (*SGDModel)(nil)
	_ model.OnlineMetrics      = (*SGDModel)(nil)
	_ model.AdaptiveLearning   = (*SGDModel)(nil)
)

// NewSGDModel は新しいSGDModelを作成する。
// 重みベクトルは次元nFeaturesのゼロベクトルで初期化されるため、
// 学習前の予測スコアは常に0になる。
// 不正なハイパーパラメータはValidationErrorを返す。
//
// 使用例:
//
//	sgd, err := linear_model.NewSGDModel(2,
//	    linear_model.WithLoss("hinge"),
//	    linear_model.WithAlpha(0.1),
//	    linear_model.WithLearningRate("optimal"),
//	    linear_model.WithRandomState(42),
//	)
func NewSGDModel(nFeatures int, options ...SGDOption) (*SGDModel, error) {
	sgd := &SGDModel{
		loss:         HingeLoss{},
		penalty:      PenaltyL2,
		alpha:        0.0001,
		l1Ratio:      0.15,
		fitIntercept: true,
		learningRate: ScheduleOptimal,
		eta0:         0.01,
		powerT:       0.25,
		shuffle:      true,
		randomState:  -1,
		tol:          1e-3,
	}

	for _, opt := range options {
		if err := opt(sgd); err != nil {
			return nil, err
		}
	}

	if nFeatures <= 0 {
		return nil, errors.NewValidationError("n_features", "must be positive", nFeatures)
	}
	if sgd.alpha < 0 {
		return nil, errors.NewValidationError("alpha", "must be non-negative", sgd.alpha)
	}
	if sgd.learningRate == ScheduleOptimal && sgd.alpha == 0 {
		return nil, errors.NewValidationError("alpha", "must be positive for the optimal schedule", sgd.alpha)
	}
	if sgd.l1Ratio < 0 || sgd.l1Ratio > 1 {
		return nil, errors.NewValidationError("l1_ratio", "must be in [0, 1]", sgd.l1Ratio)
	}

	sgd.nFeatures_ = nFeatures
	sgd.coef_ = make([]float64, nFeatures)

	return sgd, nil
}

// PartialFitOne は1観測に対して正確に1回のSGDステップを実行する。
//
//  1. 生スコア = dot(coef, x) + intercept を計算
//  2. 損失の微分 g を計算
//  3. 正則化項の勾配 r を計算（切片には正則化を掛けない）
//  4. coef -= η_t · (g·x + r) で更新
//  5. ステップカウンタ t をインクリメント
//
// 非有限値（NaN/Inf）を含む観測は重みを一切変更せずに
// NumericalInstabilityErrorで拒否する（原子性の保証）。
// 戻り値はこの観測に対する更新前の損失値。
func (sgd *SGDModel) PartialFitOne(x []float64, y float64) (float64, error) {
	sgd.mu.Lock()
	defer sgd.mu.Unlock()

	return sgd.partialFitOne(x, y)
}

// partialFitOne は呼び出し側でロックを保持していることを前提とする
func (sgd *SGDModel) partialFitOne(x []float64, y float64) (float64, error) {
	if len(x) != sgd.nFeatures_ {
		return 0, errors.NewDimensionError("SGDModel.PartialFitOne", sgd.nFeatures_, len(x), 1)
	}

	// 重みを変更する前に入力を検証する（拒否された観測は状態を変えない）
	if err := errors.CheckNumericalStability("partial_fit", x, int(sgd.t_)); err != nil {
		return 0, err
	}
	if err := errors.CheckScalar("partial_fit", y, int(sgd.t_)); err != nil {
		return 0, err
	}

	// スコア計算
	score := sgd.intercept_
	for i, xi := range x {
		score += sgd.coef_[i] * xi
	}

	loss := sgd.loss.Value(score, y)
	dloss := sgd.loss.Deriv(score, y)

	// 学習率はこのステップの番号（t+1）で評価する
	lr := sgd.learningRateAt(sgd.t_ + 1)

	// 重み更新（勾配降下 + 正則化）
	for i, xi := range x {
		grad := dloss * xi

		switch sgd.penalty {
		case PenaltyL2:
			grad += sgd.alpha * sgd.coef_[i]
		case PenaltyL1:
			grad += sgd.alpha * sign(sgd.coef_[i])
		case PenaltyElasticNet:
			grad += sgd.alpha * (sgd.l1Ratio*sign(sgd.coef_[i]) + (1-sgd.l1Ratio)*sgd.coef_[i])
		}

		sgd.coef_[i] -= lr * grad
	}

	// 切片には正則化を掛けない
	if sgd.fitIntercept {
		sgd.intercept_ -= lr * dloss
	}

	sgd.t_++
	sgd.SetFitted()

	return loss, nil
}

// PartialFit はミニバッチでモデルを逐次的に学習させる。
// 各行に対してPartialFitOneを1回ずつ呼び出す。
func (sgd *SGDModel) PartialFit(X, y mat.Matrix) error {
	sgd.mu.Lock()
	defer sgd.mu.Unlock()

	rows, cols := X.Dims()
	if cols != sgd.nFeatures_ {
		return errors.NewDimensionError("SGDModel.PartialFit", sgd.nFeatures_, cols, 1)
	}
	yRows, _ := y.Dims()
	if yRows != rows {
		return errors.NewDimensionError("SGDModel.PartialFit", rows, yRows, 0)
	}

	for i := 0; i < rows; i++ {
		xi := mat.Row(nil, i, X)
		if _, err := sgd.partialFitOne(xi, y.At(i, 0)); err != nil {
			return err
		}
	}

	return nil
}

// FitEpoch はデータセットを指定した順序で1回走査する。
// 戻り値はこのエポックの平均損失。
func (sgd *SGDModel) FitEpoch(X, y mat.Matrix, order []int) (float64, error) {
	sgd.mu.Lock()
	defer sgd.mu.Unlock()

	return sgd.fitEpoch(X, y, order)
}

func (sgd *SGDModel) fitEpoch(X, y mat.Matrix, order []int) (float64, error) {
	rows, cols := X.Dims()
	if cols != sgd.nFeatures_ {
		return 0, errors.NewDimensionError("SGDModel.FitEpoch", sgd.nFeatures_, cols, 1)
	}
	if yRows, _ := y.Dims(); yRows != rows {
		return 0, errors.NewDimensionError("SGDModel.FitEpoch", rows, yRows, 0)
	}
	if len(order) != rows {
		return 0, errors.NewDimensionError("SGDModel.FitEpoch", rows, len(order), 0)
	}

	var epochLoss float64
	for _, idx := range order {
		xi := mat.Row(nil, idx, X)
		loss, err := sgd.partialFitOne(xi, y.At(idx, 0))
		if err != nil {
			return 0, err
		}
		epochLoss += loss
	}

	epochLoss /= float64(rows)
	sgd.lossHistory_ = append(sgd.lossHistory_, epochLoss)
	sgd.nIter_++

	return epochLoss, nil
}

// FitEpochs はエポック数を指定してデータセット全体を学習する。
// shuffleが有効な場合、各エポックでシードから導出した副シードによる
// Fisher–Yatesシャッフルを行う（エポックごとに異なるが再現可能な順列）。
func (sgd *SGDModel) FitEpochs(X, y mat.Matrix, epochs int) ([]EpochRecord, error) {
	if epochs < 1 {
		return nil, errors.NewValidationError("epochs", "must be at least 1", epochs)
	}

	rows, _ := X.Dims()
	records := make([]EpochRecord, 0, epochs)

	for epoch := 0; epoch < epochs; epoch++ {
		order := epochOrder(sgd.randomState, epoch, rows, sgd.shuffle)
		avgLoss, err := sgd.FitEpoch(X, y, order)
		if err != nil {
			return records, err
		}
		records = append(records, EpochRecord{
			Epoch:        epoch,
			AvgLoss:      avgLoss,
			Observations: rows,
		})
	}

	sgd.mu.Lock()
	sgd.converged_ = lossStabilized(sgd.lossHistory_, sgd.tol)
	converged := sgd.converged_
	sgd.mu.Unlock()

	if !converged {
		errors.Warn(errors.NewConvergenceWarning("SGDModel", epochs, ""))
	}

	return records, nil
}

// Fit はバッチ学習の互換インターフェース。
// デフォルトのエポック数（5）でFitEpochsを呼び出す。
func (sgd *SGDModel) Fit(X, y mat.Matrix) error {
	_, err := sgd.FitEpochs(X, y, 5)
	return err
}

// DecisionFunctionOne は1観測に対する生スコアを返す
func (sgd *SGDModel) DecisionFunctionOne(x []float64) (float64, error) {
	sgd.mu.RLock()
	defer sgd.mu.RUnlock()

	return sgd.decisionFunctionOne(x)
}

func (sgd *SGDModel) decisionFunctionOne(x []float64) (float64, error) {
	if len(x) != sgd.nFeatures_ {
		return 0, errors.NewDimensionError("SGDModel.DecisionFunctionOne", sgd.nFeatures_, len(x), 1)
	}

	score := sgd.intercept_
	for i, xi := range x {
		score += sgd.coef_[i] * xi
	}
	return score, nil
}

// Predict は各行の生スコアを返す（回帰の予測値）
func (sgd *SGDModel) Predict(X mat.Matrix) (mat.Matrix, error) {
	sgd.mu.RLock()
	defer sgd.mu.RUnlock()

	rows, cols := X.Dims()
	if cols != sgd.nFeatures_ {
		return nil, errors.NewDimensionError("SGDModel.Predict", sgd.nFeatures_, cols, 1)
	}

	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		score, err := sgd.decisionFunctionOne(mat.Row(nil, i, X))
		if err != nil {
			return nil, err
		}
		predictions.Set(i, 0, score)
	}

	return predictions, nil
}

// PredictClass は各行の二値クラスラベル {-1, +1} を返す。
// マージン系の損失ではsign(score)、ロジスティック損失では
// sigmoid(score) >= 0.5 で判定する（結果は同値）。
func (sgd *SGDModel) PredictClass(X mat.Matrix) (mat.Matrix, error) {
	scores, err := sgd.Predict(X)
	if err != nil {
		return nil, err
	}

	rows, _ := scores.Dims()
	classes := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		label := -1.0
		if sgd.loss.SupportsProba() {
			if sigmoid(scores.At(i, 0)) >= 0.5 {
				label = 1.0
			}
		} else if scores.At(i, 0) >= 0 {
			label = 1.0
		}
		classes.Set(i, 0, label)
	}

	return classes, nil
}

// PredictProbaOne は1観測に対する陽性クラス（+1）の確率を返す。
// 確率を出力できない損失（ヒンジ等）ではUnsupportedOperationErrorを返す。
func (sgd *SGDModel) PredictProbaOne(x []float64) (float64, error) {
	sgd.mu.RLock()
	defer sgd.mu.RUnlock()

	if !sgd.loss.SupportsProba() {
		return 0, errors.NewUnsupportedOperationError("SGDModel.PredictProba",
			"loss '"+sgd.loss.Name()+"' does not produce calibrated probabilities")
	}

	score, err := sgd.decisionFunctionOne(x)
	if err != nil {
		return 0, err
	}
	return sigmoid(score), nil
}

// PredictProba は各行の陽性クラス（+1）の確率をn×1行列で返す
func (sgd *SGDModel) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	sgd.mu.RLock()
	if !sgd.loss.SupportsProba() {
		sgd.mu.RUnlock()
		return nil, errors.NewUnsupportedOperationError("SGDModel.PredictProba",
			"loss '"+sgd.loss.Name()+"' does not produce calibrated probabilities")
	}
	sgd.mu.RUnlock()

	scores, err := sgd.Predict(X)
	if err != nil {
		return nil, err
	}

	rows, _ := scores.Dims()
	probas := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		probas.Set(i, 0, sigmoid(scores.At(i, 0)))
	}

	return probas, nil
}

// FitStream はデータストリームからモデルを学習する。
// コンテキストがキャンセルされるかチャネルが閉じるまで学習を続ける。
func (sgd *SGDModel) FitStream(ctx context.Context, dataChan <-chan *model.Batch) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-dataChan:
			if !ok {
				return nil
			}
			if err := sgd.PartialFit(batch.X, batch.Y); err != nil {
				return err
			}
		}
	}
}

// learningRateAt はステップtにおける学習率を計算する
func (sgd *SGDModel) learningRateAt(t int64) float64 {
	switch sgd.learningRate {
	case ScheduleConstant:
		return sgd.eta0
	case ScheduleOptimal:
		// η_t = 1 / (α·(t + t0))、t0 = 1
		return 1.0 / (sgd.alpha * (float64(t) + 1.0))
	case ScheduleInvScaling:
		return sgd.eta0 / math.Pow(float64(t), sgd.powerT)
	default:
		return sgd.eta0
	}
}

// lossStabilized はエポック損失の履歴が許容誤差内で安定したかを判定する
func lossStabilized(history []float64, tol float64) bool {
	if len(history) < 2 {
		return false
	}
	last := history[len(history)-1]
	prev := history[len(history)-2]
	return math.Abs(prev-last) < tol
}

// epochOrder はエポックごとの走査順を生成する。
// shuffleが有効な場合はシードとエポック番号から導出した副シードで
// Fisher–Yatesシャッフルを行うため、順列はエポックごとに異なるが
// 同じシードからは常に同じ系列が再現される。
func epochOrder(seed int64, epoch, n int, shuffle bool) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	if !shuffle {
		return order
	}

	rng := rand.New(rand.NewSource(epochSeed(seed, epoch)))
	rng.Shuffle(n, func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	return order
}

// epochSeed はシードとエポック番号から副シードを導出する
func epochSeed(seed int64, epoch int) int64 {
	return seed + int64(epoch+1)*2654435761
}

// インターフェース実装メソッド

// Weights は学習された重み係数のコピーを返す
func (sgd *SGDModel) Weights() []float64 {
	sgd.mu.RLock()
	defer sgd.mu.RUnlock()

	coef := make([]float64, len(sgd.coef_))
	copy(coef, sgd.coef_)
	return coef
}

// Intercept は学習された切片を返す
func (sgd *SGDModel) Intercept() float64 {
	sgd.mu.RLock()
	defer sgd.mu.RUnlock()
	return sgd.intercept_
}

// NFeatures は特徴量の数を返す
func (sgd *SGDModel) NFeatures() int {
	return sgd.nFeatures_
}

// NIterations は実行された学習エポック数を返す
func (sgd *SGDModel) NIterations() int {
	sgd.mu.RLock()
	defer sgd.mu.RUnlock()
	return sgd.nIter_
}

// NSteps は実行されたSGDステップ総数（観測数）を返す
func (sgd *SGDModel) NSteps() int64 {
	sgd.mu.RLock()
	defer sgd.mu.RUnlock()
	return sgd.t_
}

// GetLoss は直近エポックの平均損失を返す
func (sgd *SGDModel) GetLoss() float64 {
	sgd.mu.RLock()
	defer sgd.mu.RUnlock()

	if len(sgd.lossHistory_) == 0 {
		return math.Inf(1)
	}
	return sgd.lossHistory_[len(sgd.lossHistory_)-1]
}

// GetLossHistory はエポックごとの平均損失の履歴を返す
func (sgd *SGDModel) GetLossHistory() []float64 {
	sgd.mu.RLock()
	defer sgd.mu.RUnlock()

	history := make([]float64, len(sgd.lossHistory_))
	copy(history, sgd.lossHistory_)
	return history
}

// GetConverged は収束したかどうかを返す
func (sgd *SGDModel) GetConverged() bool {
	sgd.mu.RLock()
	defer sgd.mu.RUnlock()
	return sgd.converged_
}

// GetLearningRate は次のステップで使われる学習率を返す
func (sgd *SGDModel) GetLearningRate() float64 {
	sgd.mu.RLock()
	defer sgd.mu.RUnlock()
	return sgd.learningRateAt(sgd.t_ + 1)
}

// SetLearningRate は初期学習率を設定する
func (sgd *SGDModel) SetLearningRate(lr float64) {
	sgd.mu.Lock()
	defer sgd.mu.Unlock()
	sgd.eta0 = lr
}

// GetLearningRateSchedule は学習率スケジュールの名前を返す
func (sgd *SGDModel) GetLearningRateSchedule() string {
	return sgd.learningRate
}

// GetParams はハイパーパラメータを返す
func (sgd *SGDModel) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"loss":          sgd.loss.Name(),
		"penalty":       sgd.penalty,
		"alpha":         sgd.alpha,
		"l1_ratio":      sgd.l1Ratio,
		"fit_intercept": sgd.fitIntercept,
		"learning_rate": sgd.learningRate,
		"eta0":          sgd.eta0,
		"power_t":       sgd.powerT,
		"shuffle":       sgd.shuffle,
		"random_state":  sgd.randomState,
		"tol":           sgd.tol,
	}
}

// Export はモデルの状態スナップショットを作成する。
// スナップショットにはステップカウンタまで含まれるため、Restore後に
// 同一の学習率スケジュール状態で学習を再開できる。
func (sgd *SGDModel) Export() *model.ModelWeights {
	sgd.mu.RLock()
	defer sgd.mu.RUnlock()

	coef := make([]float64, len(sgd.coef_))
	copy(coef, sgd.coef_)

	return &model.ModelWeights{
		ModelType:    "SGDModel",
		Version:      sgdWeightsVersion,
		NFeatures:    sgd.nFeatures_,
		Coefficients: coef,
		Intercept:    sgd.intercept_,
		Loss:         sgd.loss.Name(),
		Penalty:      sgd.penalty,
		Alpha:        sgd.alpha,
		Steps:        sgd.t_,
		IsFitted:     sgd.IsFitted(),
	}
}

// Restore はスナップショットからモデルの状態を復元する
func (sgd *SGDModel) Restore(mw *model.ModelWeights) error {
	if err := mw.Validate(); err != nil {
		return errors.NewModelError("SGDModel.Restore", "invalid snapshot", err)
	}
	if mw.ModelType != "SGDModel" {
		return errors.NewValidationError("model_type", "snapshot is not an SGDModel", mw.ModelType)
	}

	loss, err := ParseLoss(mw.Loss)
	if err != nil {
		return err
	}

	sgd.mu.Lock()
	defer sgd.mu.Unlock()

	sgd.nFeatures_ = mw.NFeatures
	sgd.coef_ = make([]float64, len(mw.Coefficients))
	copy(sgd.coef_, mw.Coefficients)
	sgd.intercept_ = mw.Intercept
	sgd.loss = loss
	sgd.penalty = mw.Penalty
	sgd.alpha = mw.Alpha
	sgd.t_ = mw.Steps

	if mw.IsFitted {
		sgd.SetFitted()
	} else {
		sgd.Reset()
	}

	return nil
}
