package linear_model

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/itskaykayleigh/goonline/core/model"
	"github.com/itskaykayleigh/goonline/core/parallel"
	"github.com/itskaykayleigh/goonline/pkg/errors"
)

// ovrParallelThreshold はクラスごとの学習を並列化する最小クラス数
const ovrParallelThreshold = 4

// OneVsRest は二値のSGDModelをクラスごとに1つずつ持つ多クラス分類器。
// クラス集合は構築時に固定され、学習中に未知のラベルが現れた場合は
// どのモデルも更新せずにエラーを返す。
//
// 1観測の学習でK個すべての二値モデルが正確に1ステップずつ更新される
// （該当クラスのモデルには+1、それ以外には-1がターゲットとして渡される）。
type OneVsRest struct {
	model.BaseEstimator

	classes_   []int             // 昇順にソートされたクラスラベル
	models_    map[int]*SGDModel // クラスラベル → 二値モデル
	nFeatures_ int

	// エポック順はラッパーが所有する（構築時のオプションから引き継ぐ）
	seed_    int64
	shuffle_ bool

	mu sync.RWMutex
}

// インターフェース実装の静的チェック
var (
	_ model.Classifier           = (*OneVsRest)(nil)
	_ model.IncrementalEstimator = (*OneVsRest)(nil)
)

// NewOneVsRest は固定のクラス集合に対するOne-vs-Rest分類器を作成する。
// optionsは各クラスの二値モデルすべてに同じ内容で適用される。
// 確率出力が必要な場合はWithLoss("log")を指定する。
// クラスが2種類未満の場合はValidationErrorを返す。
func NewOneVsRest(nFeatures int, classes []int, options ...SGDOption) (*OneVsRest, error) {
	// 重複を除去して昇順に並べる
	seen := make(map[int]bool, len(classes))
	unique := make([]int, 0, len(classes))
	for _, c := range classes {
		if !seen[c] {
			seen[c] = true
			unique = append(unique, c)
		}
	}
	sort.Ints(unique)

	if len(unique) < 2 {
		return nil, errors.NewValidationError("classes", "need at least 2 distinct classes", len(unique))
	}

	var seed int64
	shuffle := true
	models := make(map[int]*SGDModel, len(unique))
	for i, c := range unique {
		sgd, err := NewSGDModel(nFeatures, options...)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			seed = sgd.randomState
			shuffle = sgd.shuffle
		}
		// エポック順はラッパー側が所有するため、各二値モデルの
		// 内部シャッフルは使わない
		sgd.shuffle = false
		models[c] = sgd
	}

	return &OneVsRest{
		classes_:   unique,
		models_:    models,
		nFeatures_: nFeatures,
		seed_:      seed,
		shuffle_:   shuffle,
	}, nil
}

// Classes は昇順のクラスラベルのコピーを返す
func (ovr *OneVsRest) Classes() []int {
	classes := make([]int, len(ovr.classes_))
	copy(classes, ovr.classes_)
	return classes
}

// NFeatures は特徴量の数を返す
func (ovr *OneVsRest) NFeatures() int {
	return ovr.nFeatures_
}

// labelAt はy[i]をクラスラベルとして取り出す。
// 整数値でないラベルはintへの変換で切り捨てられ別クラスに化けるため、
// 変換前に検出してValueErrorを返す。
func labelAt(op string, y mat.Matrix, i int) (int, error) {
	v := y.At(i, 0)
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, errors.NewValueError(op, "class label must be an integer value")
	}
	return int(v), nil
}

// PartialFitOne は1観測でK個の二値モデルすべてを1ステップずつ更新する。
// 未知のラベルや非有限値を含む観測は、どのモデルも更新せずに拒否する。
func (ovr *OneVsRest) PartialFitOne(x []float64, y int) error {
	ovr.mu.Lock()
	defer ovr.mu.Unlock()

	return ovr.partialFitOne(x, y)
}

func (ovr *OneVsRest) partialFitOne(x []float64, y int) error {
	if len(x) != ovr.nFeatures_ {
		return errors.NewDimensionError("OneVsRest.PartialFitOne", ovr.nFeatures_, len(x), 1)
	}
	if _, ok := ovr.models_[y]; !ok {
		return errors.NewValueError("OneVsRest.PartialFitOne", "unknown class label")
	}

	// どのモデルも更新される前に入力を検証する。
	// 最初のモデルで拒否される入力は以降のモデルでも必ず拒否されるため、
	// ここで通れば全モデルが更新される（全か無かの保証）。
	if err := errors.CheckNumericalStability("partial_fit", x, 0); err != nil {
		return err
	}

	for _, c := range ovr.classes_ {
		target := -1.0
		if c == y {
			target = 1.0
		}
		if _, err := ovr.models_[c].PartialFitOne(x, target); err != nil {
			return err
		}
	}

	ovr.SetFitted()
	return nil
}

// PartialFit はミニバッチでK個の二値モデルを逐次的に学習させる。
// yの各要素は構築時に指定したクラスラベル（整数値）でなければならない。
func (ovr *OneVsRest) PartialFit(X, y mat.Matrix) error {
	ovr.mu.Lock()
	defer ovr.mu.Unlock()

	rows, cols := X.Dims()
	if cols != ovr.nFeatures_ {
		return errors.NewDimensionError("OneVsRest.PartialFit", ovr.nFeatures_, cols, 1)
	}
	yRows, _ := y.Dims()
	if yRows != rows {
		return errors.NewDimensionError("OneVsRest.PartialFit", rows, yRows, 0)
	}

	for i := 0; i < rows; i++ {
		label, err := labelAt("OneVsRest.PartialFit", y, i)
		if err != nil {
			return err
		}
		if err := ovr.partialFitOne(mat.Row(nil, i, X), label); err != nil {
			return err
		}
	}

	return nil
}

// FitEpoch はデータセットを指定した順序で1回走査する。
// K個の二値モデルは同一の走査順で並列に学習されるため、結果は
// 逐次実行と完全に一致する。戻り値はクラス平均の二値エポック損失。
func (ovr *OneVsRest) FitEpoch(X, y mat.Matrix, order []int) (float64, error) {
	ovr.mu.Lock()
	defer ovr.mu.Unlock()

	rows, cols := X.Dims()
	if cols != ovr.nFeatures_ {
		return 0, errors.NewDimensionError("OneVsRest.FitEpoch", ovr.nFeatures_, cols, 1)
	}
	if yRows, _ := y.Dims(); yRows != rows {
		return 0, errors.NewDimensionError("OneVsRest.FitEpoch", rows, yRows, 0)
	}
	if len(order) != rows {
		return 0, errors.NewDimensionError("OneVsRest.FitEpoch", rows, len(order), 0)
	}

	// ラベルを事前に検証する（どのモデルも更新される前に）
	labels := make([]int, rows)
	for i := 0; i < rows; i++ {
		label, err := labelAt("OneVsRest.FitEpoch", y, i)
		if err != nil {
			return 0, err
		}
		if _, ok := ovr.models_[label]; !ok {
			return 0, errors.NewValueError("OneVsRest.FitEpoch", "unknown class label")
		}
		labels[i] = label
	}

	// クラスごとの二値ターゲットを構築する
	targets := make(map[int]*mat.VecDense, len(ovr.classes_))
	for _, c := range ovr.classes_ {
		t := mat.NewVecDense(rows, nil)
		for i := 0; i < rows; i++ {
			if labels[i] == c {
				t.SetVec(i, 1)
			} else {
				t.SetVec(i, -1)
			}
		}
		targets[c] = t
	}

	// 各クラスの二値モデルは独立なので、クラス単位で並列化できる
	losses := make([]float64, len(ovr.classes_))
	errs := make([]error, len(ovr.classes_))
	parallel.ParallelizeWithThreshold(len(ovr.classes_), ovrParallelThreshold, func(start, end int) {
		for k := start; k < end; k++ {
			c := ovr.classes_[k]
			losses[k], errs[k] = ovr.models_[c].FitEpoch(X, targets[c], order)
		}
	})

	for _, err := range errs {
		if err != nil {
			return 0, err
		}
	}

	var avgLoss float64
	for _, l := range losses {
		avgLoss += l
	}
	avgLoss /= float64(len(losses))

	ovr.SetFitted()
	return avgLoss, nil
}

// FitEpochs はエポック数を指定してデータセット全体を学習する
func (ovr *OneVsRest) FitEpochs(X, y mat.Matrix, epochs int) ([]EpochRecord, error) {
	if epochs < 1 {
		return nil, errors.NewValidationError("epochs", "must be at least 1", epochs)
	}

	rows, _ := X.Dims()
	records := make([]EpochRecord, 0, epochs)

	for epoch := 0; epoch < epochs; epoch++ {
		order := epochOrder(ovr.seed_, epoch, rows, ovr.shuffle_)
		avgLoss, err := ovr.FitEpoch(X, y, order)
		if err != nil {
			return records, err
		}
		records = append(records, EpochRecord{
			Epoch:        epoch,
			AvgLoss:      avgLoss,
			Observations: rows,
		})
	}

	return records, nil
}

// Fit はバッチ学習の互換インターフェース
func (ovr *OneVsRest) Fit(X, y mat.Matrix) error {
	_, err := ovr.FitEpochs(X, y, 5)
	return err
}

// DecisionFunctionOne は1観測に対する各クラスの生スコアを返す
func (ovr *OneVsRest) DecisionFunctionOne(x []float64) (map[int]float64, error) {
	ovr.mu.RLock()
	defer ovr.mu.RUnlock()

	if len(x) != ovr.nFeatures_ {
		return nil, errors.NewDimensionError("OneVsRest.DecisionFunctionOne", ovr.nFeatures_, len(x), 1)
	}

	scores := make(map[int]float64, len(ovr.classes_))
	for _, c := range ovr.classes_ {
		score, err := ovr.models_[c].DecisionFunctionOne(x)
		if err != nil {
			return nil, err
		}
		scores[c] = score
	}

	return scores, nil
}

// PredictClassOne は1観測に対する予測クラスラベルを返す。
// スコア最大のクラスを選び、同点の場合はラベルが最小のクラスを返す
// （クラスを昇順に走査し、真に大きいスコアのみで更新するため）。
func (ovr *OneVsRest) PredictClassOne(x []float64) (int, error) {
	scores, err := ovr.DecisionFunctionOne(x)
	if err != nil {
		return 0, err
	}

	best := ovr.classes_[0]
	bestScore := scores[best]
	for _, c := range ovr.classes_[1:] {
		if scores[c] > bestScore {
			best = c
			bestScore = scores[c]
		}
	}

	return best, nil
}

// Predict は各行の予測クラスラベルをn×1行列で返す
func (ovr *OneVsRest) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, cols := X.Dims()
	if cols != ovr.nFeatures_ {
		return nil, errors.NewDimensionError("OneVsRest.Predict", ovr.nFeatures_, cols, 1)
	}

	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		label, err := ovr.PredictClassOne(mat.Row(nil, i, X))
		if err != nil {
			return nil, err
		}
		predictions.Set(i, 0, float64(label))
	}

	return predictions, nil
}

// PredictProbaOne は1観測に対する各クラスの確率を返す。
// 各二値モデルのシグモイド出力を合計1に正規化する。
// 確率を出力できない損失の場合はUnsupportedOperationErrorを返す。
func (ovr *OneVsRest) PredictProbaOne(x []float64) (map[int]float64, error) {
	ovr.mu.RLock()
	defer ovr.mu.RUnlock()

	if len(x) != ovr.nFeatures_ {
		return nil, errors.NewDimensionError("OneVsRest.PredictProbaOne", ovr.nFeatures_, len(x), 1)
	}

	raw := make(map[int]float64, len(ovr.classes_))
	var total float64
	for _, c := range ovr.classes_ {
		p, err := ovr.models_[c].PredictProbaOne(x)
		if err != nil {
			return nil, err
		}
		raw[c] = p
		total += p
	}

	probas := make(map[int]float64, len(ovr.classes_))
	if total == 0 {
		// すべての二値確率が0の場合は一様分布にフォールバック
		uniform := 1.0 / float64(len(ovr.classes_))
		for _, c := range ovr.classes_ {
			probas[c] = uniform
		}
		return probas, nil
	}

	for c, p := range raw {
		probas[c] = p / total
	}

	return probas, nil
}

// PredictProba は各行のクラス確率をn×K行列で返す。
// 列はクラスラベルの昇順に対応する。
func (ovr *OneVsRest) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rows, cols := X.Dims()
	if cols != ovr.nFeatures_ {
		return nil, errors.NewDimensionError("OneVsRest.PredictProba", ovr.nFeatures_, cols, 1)
	}

	probas := mat.NewDense(rows, len(ovr.classes_), nil)
	for i := 0; i < rows; i++ {
		rowProbas, err := ovr.PredictProbaOne(mat.Row(nil, i, X))
		if err != nil {
			return nil, err
		}
		for j, c := range ovr.classes_ {
			probas.Set(i, j, rowProbas[c])
		}
	}

	return probas, nil
}

// NSteps はSGDステップ総数を返す。
// すべての二値モデルは常に同じステップ数を持つ（全か無かの更新保証）。
func (ovr *OneVsRest) NSteps() int64 {
	ovr.mu.RLock()
	defer ovr.mu.RUnlock()
	return ovr.models_[ovr.classes_[0]].NSteps()
}

// NIterations は実行された学習エポック数を返す
func (ovr *OneVsRest) NIterations() int {
	ovr.mu.RLock()
	defer ovr.mu.RUnlock()
	return ovr.models_[ovr.classes_[0]].NIterations()
}

// Model は指定したクラスの二値モデルを返す（診断用）
func (ovr *OneVsRest) Model(class int) (*SGDModel, error) {
	m, ok := ovr.models_[class]
	if !ok {
		return nil, errors.NewValueError("OneVsRest.Model", "unknown class label")
	}
	return m, nil
}

// Export は全クラスの二値モデルの状態スナップショットを作成する
func (ovr *OneVsRest) Export() map[int]*model.ModelWeights {
	ovr.mu.RLock()
	defer ovr.mu.RUnlock()

	snapshots := make(map[int]*model.ModelWeights, len(ovr.classes_))
	for _, c := range ovr.classes_ {
		snapshots[c] = ovr.models_[c].Export()
	}
	return snapshots
}

// Restore はスナップショットから全クラスの二値モデルを復元する。
// スナップショットのクラス集合は構築時のクラス集合と一致しなければならない。
func (ovr *OneVsRest) Restore(snapshots map[int]*model.ModelWeights) error {
	ovr.mu.Lock()
	defer ovr.mu.Unlock()

	if len(snapshots) != len(ovr.classes_) {
		return errors.NewValidationError("snapshots", "class count mismatch", len(snapshots))
	}

	for _, c := range ovr.classes_ {
		mw, ok := snapshots[c]
		if !ok {
			return errors.NewValueError("OneVsRest.Restore", "snapshot missing a class")
		}
		if err := ovr.models_[c].Restore(mw); err != nil {
			return err
		}
	}

	ovr.SetFitted()
	return nil
}
