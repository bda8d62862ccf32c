package linear_model

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/itskaykayleigh/goonline/core/model"
	"github.com/itskaykayleigh/goonline/pkg/errors"
)

// makeBlobs は2つの分離可能なクラスタ（+1が(2,2)付近、-1が(-2,-2)付近）を生成する
func makeBlobs(n int, seed int64) (*mat.Dense, *mat.VecDense) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)

	for i := 0; i < n; i++ {
		label := 1.0
		center := 2.0
		if i%2 == 1 {
			label = -1.0
			center = -2.0
		}
		X.Set(i, 0, center+rng.Float64()-0.5)
		X.Set(i, 1, center+rng.Float64()-0.5)
		y.SetVec(i, label)
	}

	return X, y
}

// regressionNoiseStd は makeRegression のガウスノイズの標準偏差
const regressionNoiseStd = 0.2

// makeRegression は y = 3·x1 - 2·x2 + ノイズ のデータを生成する
func makeRegression(n int, seed int64) (*mat.Dense, *mat.VecDense) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)

	for i := 0; i < n; i++ {
		x1 := rng.Float64()*2 - 1
		x2 := rng.Float64()*2 - 1
		X.Set(i, 0, x1)
		X.Set(i, 1, x2)
		y.SetVec(i, 3*x1-2*x2+regressionNoiseStd*rng.NormFloat64())
	}

	return X, y
}

func TestNewSGDModel_Validation(t *testing.T) {
	tests := []struct {
		name      string
		nFeatures int
		options   []SGDOption
		wantErr   bool
	}{
		{
			name:      "defaults are valid",
			nFeatures: 3,
			wantErr:   false,
		},
		{
			name:      "zero features",
			nFeatures: 0,
			wantErr:   true,
		},
		{
			name:      "negative alpha",
			nFeatures: 2,
			options:   []SGDOption{WithAlpha(-0.1)},
			wantErr:   true,
		},
		{
			name:      "optimal schedule requires positive alpha",
			nFeatures: 2,
			options:   []SGDOption{WithAlpha(0), WithLearningRate(ScheduleOptimal)},
			wantErr:   true,
		},
		{
			name:      "zero alpha with constant schedule is fine",
			nFeatures: 2,
			options:   []SGDOption{WithAlpha(0), WithLearningRate(ScheduleConstant)},
			wantErr:   false,
		},
		{
			name:      "unknown penalty",
			nFeatures: 2,
			options:   []SGDOption{WithPenalty("l3")},
			wantErr:   true,
		},
		{
			name:      "unknown schedule",
			nFeatures: 2,
			options:   []SGDOption{WithLearningRate("adaptive")},
			wantErr:   true,
		},
		{
			name:      "unknown loss",
			nFeatures: 2,
			options:   []SGDOption{WithLoss("perceptron")},
			wantErr:   true,
		},
		{
			name:      "non-positive eta0",
			nFeatures: 2,
			options:   []SGDOption{WithEta0(0)},
			wantErr:   true,
		},
		{
			name:      "l1_ratio out of range",
			nFeatures: 2,
			options:   []SGDOption{WithL1Ratio(1.5)},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSGDModel(tt.nFeatures, tt.options...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSGDModel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var vErr *errors.ValidationError
				if !errors.As(err, &vErr) {
					t.Errorf("error = %v, want *ValidationError", err)
				}
			}
		})
	}
}

// 学習前のモデルはゼロ重みなので、すべての生スコアは正確に0になる
func TestSGDModel_ZeroInitialization(t *testing.T) {
	sgd, err := NewSGDModel(3)
	if err != nil {
		t.Fatalf("NewSGDModel() error = %v", err)
	}

	score, err := sgd.DecisionFunctionOne([]float64{1.5, -2.0, 100.0})
	if err != nil {
		t.Fatalf("DecisionFunctionOne() error = %v", err)
	}
	if score != 0 {
		t.Errorf("score before training = %v, want exactly 0", score)
	}

	if sgd.IsFitted() {
		t.Error("model should not be fitted before any update")
	}
	if sgd.NSteps() != 0 {
		t.Errorf("NSteps() = %v, want 0", sgd.NSteps())
	}
}

// NaN/Infを含む観測は重みを1ビットも変更せずに拒否される
func TestSGDModel_RejectsNonFiniteInputAtomically(t *testing.T) {
	sgd, err := NewSGDModel(2, WithLoss("squared"), WithLearningRate(ScheduleConstant), WithEta0(0.1))
	if err != nil {
		t.Fatalf("NewSGDModel() error = %v", err)
	}

	// まず正常な観測で学習して重みを非ゼロにする
	if _, err := sgd.PartialFitOne([]float64{1.0, 2.0}, 3.0); err != nil {
		t.Fatalf("PartialFitOne() error = %v", err)
	}

	before := sgd.Weights()
	interceptBefore := sgd.Intercept()
	stepsBefore := sgd.NSteps()

	badInputs := [][]float64{
		{math.NaN(), 1.0},
		{1.0, math.Inf(1)},
		{math.Inf(-1), math.NaN()},
	}
	for _, x := range badInputs {
		if _, err := sgd.PartialFitOne(x, 1.0); err == nil {
			t.Errorf("PartialFitOne(%v) expected an error", x)
		}
	}

	// NaNターゲットも拒否される
	if _, err := sgd.PartialFitOne([]float64{1.0, 1.0}, math.NaN()); err == nil {
		t.Error("PartialFitOne with NaN target expected an error")
	}

	after := sgd.Weights()
	for i := range before {
		if math.Float64bits(before[i]) != math.Float64bits(after[i]) {
			t.Errorf("coef[%d] changed after rejected update: %v -> %v", i, before[i], after[i])
		}
	}
	if math.Float64bits(interceptBefore) != math.Float64bits(sgd.Intercept()) {
		t.Errorf("intercept changed after rejected update")
	}
	if sgd.NSteps() != stepsBefore {
		t.Errorf("NSteps() = %v, want %v (rejected updates must not count)", sgd.NSteps(), stepsBefore)
	}
}

func TestSGDModel_HingeClassificationEndToEnd(t *testing.T) {
	X, y := makeBlobs(100, 42)

	sgd, err := NewSGDModel(2,
		WithLoss("hinge"),
		WithAlpha(0.1),
		WithLearningRate(ScheduleOptimal),
		WithRandomState(42),
	)
	if err != nil {
		t.Fatalf("NewSGDModel() error = %v", err)
	}

	records, err := sgd.FitEpochs(X, y, 5)
	if err != nil {
		t.Fatalf("FitEpochs() error = %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("got %d epoch records, want 5", len(records))
	}

	// 分離可能なデータでは損失は初期エポックから減少する
	if records[len(records)-1].AvgLoss >= records[0].AvgLoss {
		t.Errorf("loss did not decrease: first=%v last=%v", records[0].AvgLoss, records[len(records)-1].AvgLoss)
	}

	// 減少は確率的なので、連続するエポック間では小さな揺らぎのみ許容する
	const epochLossTol = 0.05
	for e := 1; e < len(records); e++ {
		if records[e].AvgLoss > records[e-1].AvgLoss+epochLossTol {
			t.Errorf("epoch loss increased at epoch %d: %v -> %v", e, records[e-1].AvgLoss, records[e].AvgLoss)
		}
	}

	predictions, err := sgd.PredictClass(X)
	if err != nil {
		t.Fatalf("PredictClass() error = %v", err)
	}

	correct := 0
	rows, _ := X.Dims()
	for i := 0; i < rows; i++ {
		if predictions.At(i, 0) == y.AtVec(i) {
			correct++
		}
	}
	accuracy := float64(correct) / float64(rows)
	if accuracy < 0.9 {
		t.Errorf("accuracy = %v, want >= 0.9", accuracy)
	}

	if sgd.NSteps() != int64(rows*5) {
		t.Errorf("NSteps() = %v, want %v", sgd.NSteps(), rows*5)
	}
}

// regressionRMSE は訓練データ全体に対するモデルの二乗平均平方根誤差を返す
func regressionRMSE(t *testing.T, sgd *SGDModel, X mat.Matrix, y *mat.VecDense) float64 {
	t.Helper()

	predictions, err := sgd.Predict(X)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	var sse float64
	rows, _ := X.Dims()
	for i := 0; i < rows; i++ {
		diff := predictions.At(i, 0) - y.AtVec(i)
		sse += diff * diff
	}
	return math.Sqrt(sse / float64(rows))
}

func TestSGDModel_SquaredRegressionEndToEnd(t *testing.T) {
	X, y := makeRegression(200, 1)
	rows, _ := X.Dims()

	// 減衰スケジュールを使うと、ステップ幅が縮むためRMSEは
	// ノイズ下限に達した後も振動せずエポックごとに減少し続ける
	sgd, err := NewSGDModel(2,
		WithLoss("squared"),
		WithPenalty(PenaltyNone),
		WithLearningRate(ScheduleInvScaling),
		WithEta0(0.1),
		WithPowerT(0.5),
		WithRandomState(1),
	)
	if err != nil {
		t.Fatalf("NewSGDModel() error = %v", err)
	}

	const epochs = 10
	rmses := make([]float64, 0, epochs)
	for epoch := 0; epoch < epochs; epoch++ {
		order := epochOrder(1, epoch, rows, true)
		if _, err := sgd.FitEpoch(X, y, order); err != nil {
			t.Fatalf("FitEpoch() error = %v", err)
		}
		rmses = append(rmses, regressionRMSE(t, sgd, X, y))
	}

	// RMSEはエポックをまたいで単調に減少する（微小な許容幅つき）
	const monotoneTol = 0.01
	for e := 1; e < len(rmses); e++ {
		if rmses[e] > rmses[e-1]+monotoneTol {
			t.Errorf("RMSE increased at epoch %d: %v -> %v", e, rmses[e-1], rmses[e])
		}
	}

	// 最終RMSEはノイズ標準偏差の1.5倍以内に収まる
	final := rmses[len(rmses)-1]
	if final > 1.5*regressionNoiseStd {
		t.Errorf("final RMSE = %v, want <= %v", final, 1.5*regressionNoiseStd)
	}

	// 学習された重みは真の係数 (3, -2) に近づく
	coef := sgd.Weights()
	if math.Abs(coef[0]-3) > 0.5 || math.Abs(coef[1]-(-2)) > 0.5 {
		t.Errorf("coef = %v, want near [3, -2]", coef)
	}
}

func TestSGDModel_LearningRateSchedules(t *testing.T) {
	tests := []struct {
		name    string
		options []SGDOption
		step    int64
		want    float64
	}{
		{
			name:    "constant",
			options: []SGDOption{WithLearningRate(ScheduleConstant), WithEta0(0.5)},
			step:    100,
			want:    0.5,
		},
		{
			name:    "optimal",
			options: []SGDOption{WithLearningRate(ScheduleOptimal), WithAlpha(0.1)},
			step:    9,
			want:    1.0, // 1 / (0.1 * (9 + 1))
		},
		{
			name:    "invscaling",
			options: []SGDOption{WithLearningRate(ScheduleInvScaling), WithEta0(0.5), WithPowerT(0.25)},
			step:    16,
			want:    0.25, // 0.5 / 16^0.25
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sgd, err := NewSGDModel(2, tt.options...)
			if err != nil {
				t.Fatalf("NewSGDModel() error = %v", err)
			}
			if got := sgd.learningRateAt(tt.step); math.Abs(got-tt.want) > 1e-10 {
				t.Errorf("learningRateAt(%d) = %v, want %v", tt.step, got, tt.want)
			}
		})
	}
}

// L1正則化はL2よりも係数を疎にする
func TestSGDModel_L1ProducesSparserWeights(t *testing.T) {
	X, y := makeRegression(200, 7)

	// 無関係な3番目の特徴量を付け足す
	rows, _ := X.Dims()
	X3 := mat.NewDense(rows, 3, nil)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < rows; i++ {
		X3.Set(i, 0, X.At(i, 0))
		X3.Set(i, 1, X.At(i, 1))
		X3.Set(i, 2, rng.Float64()*2-1)
	}

	fit := func(penalty string) []float64 {
		sgd, err := NewSGDModel(3,
			WithLoss("squared"),
			WithPenalty(penalty),
			WithAlpha(0.01),
			WithLearningRate(ScheduleConstant),
			WithEta0(0.05),
			WithRandomState(7),
		)
		if err != nil {
			t.Fatalf("NewSGDModel(%s) error = %v", penalty, err)
		}
		if _, err := sgd.FitEpochs(X3, y, 10); err != nil {
			t.Fatalf("FitEpochs(%s) error = %v", penalty, err)
		}
		return sgd.Weights()
	}

	l1 := fit(PenaltyL1)
	l2 := fit(PenaltyL2)

	// 無関係な特徴量の係数は0の近くに抑えられる
	if math.Abs(l1[2]) > 0.1 {
		t.Errorf("L1 irrelevant coef = %v, want near 0", l1[2])
	}
	// 正則化があっても本物の係数は学習できる
	if math.Abs(l1[0]-3) > 0.7 || math.Abs(l2[0]-3) > 0.7 {
		t.Errorf("relevant coef: l1=%v l2=%v, want near 3", l1[0], l2[0])
	}
}

func TestSGDModel_PredictProba(t *testing.T) {
	hinge, err := NewSGDModel(2, WithLoss("hinge"))
	if err != nil {
		t.Fatalf("NewSGDModel() error = %v", err)
	}

	_, err = hinge.PredictProbaOne([]float64{1, 2})
	if err == nil {
		t.Fatal("expected an error for hinge loss probabilities")
	}
	var uoErr *errors.UnsupportedOperationError
	if !errors.As(err, &uoErr) {
		t.Errorf("error = %v, want *UnsupportedOperationError", err)
	}

	logit, err := NewSGDModel(2, WithLoss("log"))
	if err != nil {
		t.Fatalf("NewSGDModel() error = %v", err)
	}

	p, err := logit.PredictProbaOne([]float64{1, 2})
	if err != nil {
		t.Fatalf("PredictProbaOne() error = %v", err)
	}
	// ゼロ重みではスコア0、確率は0.5
	if math.Abs(p-0.5) > 1e-10 {
		t.Errorf("proba = %v, want 0.5", p)
	}
}

func TestSGDModel_DimensionErrors(t *testing.T) {
	sgd, err := NewSGDModel(3)
	if err != nil {
		t.Fatalf("NewSGDModel() error = %v", err)
	}

	if _, err := sgd.PartialFitOne([]float64{1, 2}, 1); err == nil {
		t.Error("PartialFitOne with wrong width expected an error")
	}

	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	y := mat.NewVecDense(2, []float64{1, -1})
	if err := sgd.PartialFit(X, y); err == nil {
		t.Error("PartialFit with wrong width expected an error")
	}

	if _, err := sgd.Predict(X); err == nil {
		t.Error("Predict with wrong width expected an error")
	}

	var dimErr *errors.DimensionError
	_, err = sgd.FitEpoch(mat.NewDense(2, 3, nil), y, []int{0})
	if err == nil || !errors.As(err, &dimErr) {
		t.Errorf("FitEpoch with wrong order length: error = %v, want *DimensionError", err)
	}
}

// Export/Restoreでステップカウンタまで復元されるため、
// 復元したモデルの学習再開は元のモデルと厳密に一致する
func TestSGDModel_ExportRestoreResumesExactly(t *testing.T) {
	X, y := makeBlobs(40, 3)
	rows, _ := X.Dims()
	order := make([]int, rows)
	for i := range order {
		order[i] = i
	}

	opts := []SGDOption{
		WithLoss("hinge"),
		WithAlpha(0.1),
		WithLearningRate(ScheduleOptimal),
		WithShuffle(false),
	}

	original, err := NewSGDModel(2, opts...)
	if err != nil {
		t.Fatalf("NewSGDModel() error = %v", err)
	}
	if _, err := original.FitEpoch(X, y, order); err != nil {
		t.Fatalf("FitEpoch() error = %v", err)
	}

	snapshot := original.Export()
	if snapshot.Steps != int64(rows) {
		t.Fatalf("snapshot.Steps = %v, want %v", snapshot.Steps, rows)
	}

	// JSON経由の往復でも状態は失われない
	data, err := snapshot.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	restored := &model.ModelWeights{}
	if err := restored.FromJSON(data); err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}

	resumed, err := NewSGDModel(2, opts...)
	if err != nil {
		t.Fatalf("NewSGDModel() error = %v", err)
	}
	if err := resumed.Restore(restored); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	// 両方のモデルでもう1エポック学習し、重みが厳密に一致することを確認
	if _, err := original.FitEpoch(X, y, order); err != nil {
		t.Fatalf("FitEpoch() error = %v", err)
	}
	if _, err := resumed.FitEpoch(X, y, order); err != nil {
		t.Fatalf("FitEpoch() error = %v", err)
	}

	wOriginal := original.Weights()
	wResumed := resumed.Weights()
	for i := range wOriginal {
		if math.Float64bits(wOriginal[i]) != math.Float64bits(wResumed[i]) {
			t.Errorf("coef[%d]: original=%v resumed=%v", i, wOriginal[i], wResumed[i])
		}
	}
	if original.Intercept() != resumed.Intercept() {
		t.Errorf("intercept: original=%v resumed=%v", original.Intercept(), resumed.Intercept())
	}
}

func TestSGDModel_RestoreRejectsBadSnapshot(t *testing.T) {
	sgd, err := NewSGDModel(2)
	if err != nil {
		t.Fatalf("NewSGDModel() error = %v", err)
	}

	if err := sgd.Restore(&model.ModelWeights{}); err == nil {
		t.Error("Restore of empty snapshot expected an error")
	}

	if err := sgd.Restore(&model.ModelWeights{
		ModelType: "LinearRegression",
		Version:   "1",
		NFeatures: 2,
		Loss:      "hinge",
	}); err == nil {
		t.Error("Restore of foreign model type expected an error")
	}
}

// 同じシードからは同じシャッフル系列が再現され、異なるエポックでは順列が変わる
func TestEpochOrder(t *testing.T) {
	a := epochOrder(42, 0, 50, true)
	b := epochOrder(42, 0, 50, true)
	c := epochOrder(42, 1, 50, true)

	same := true
	differs := false
	for i := range a {
		if a[i] != b[i] {
			same = false
		}
		if a[i] != c[i] {
			differs = true
		}
	}
	if !same {
		t.Error("same seed and epoch must produce identical order")
	}
	if !differs {
		t.Error("different epochs should produce different orders")
	}

	// シャッフル無効時は恒等順列
	id := epochOrder(42, 0, 5, false)
	for i, v := range id {
		if v != i {
			t.Errorf("order[%d] = %d, want %d", i, v, i)
			break
		}
	}
}

func TestSGDModel_FitStream(t *testing.T) {
	sgd, err := NewSGDModel(2, WithLoss("squared"), WithLearningRate(ScheduleConstant), WithEta0(0.01))
	if err != nil {
		t.Fatalf("NewSGDModel() error = %v", err)
	}

	batches := make(chan *model.Batch, 2)
	batches <- &model.Batch{
		X: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		Y: mat.NewVecDense(2, []float64{1, -1}),
	}
	batches <- &model.Batch{
		X: mat.NewDense(1, 2, []float64{1, 1}),
		Y: mat.NewVecDense(1, []float64{0.5}),
	}
	close(batches)

	if err := sgd.FitStream(context.Background(), batches); err != nil {
		t.Fatalf("FitStream() error = %v", err)
	}
	if sgd.NSteps() != 3 {
		t.Errorf("NSteps() = %v, want 3", sgd.NSteps())
	}
	if !sgd.IsFitted() {
		t.Error("model should be fitted after streaming")
	}
}
