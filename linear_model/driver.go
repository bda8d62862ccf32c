package linear_model

import (
	"context"
	"log/slog"
	"sync"

	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/mat"

	"github.com/itskaykayleigh/goonline/pkg/errors"
	mllog "github.com/itskaykayleigh/goonline/pkg/log"
)

// EpochRecord は1エポックの学習結果の診断情報
type EpochRecord struct {
	// Epoch はエポック番号（0始まり）
	Epoch int

	// AvgLoss はこのエポックの平均損失
	AvgLoss float64

	// Observations はこのエポックで処理された観測数
	Observations int
}

// EpochTrainable はエポック単位で学習できるモデル。
// SGDModelとOneVsRestの両方が実装する。
type EpochTrainable interface {
	// FitEpoch はデータセットを指定した順序で1回走査し、平均損失を返す
	FitEpoch(X, y mat.Matrix, order []int) (float64, error)

	// NSteps はSGDステップ総数を返す
	NSteps() int64
}

// Trainer はエポック学習のドライバ。
// 走査順の生成（シャッフル）、エポックごとの診断レコードのストリーミング、
// 進捗の構造化ログ出力を担当する。モデル自体は走査順を所有しない。
type Trainer struct {
	epochs    int
	shuffle   bool
	seed      int64
	tol       float64
	verbose   bool
	modelName string
	logger    *slog.Logger

	mu  sync.Mutex
	err error
}

// TrainerOption はTrainerの設定を変更する関数オプション
type TrainerOption func(*Trainer)

// WithTrainerShuffle はエポックごとのシャッフルを有効・無効にする
func WithTrainerShuffle(shuffle bool) TrainerOption {
	return func(t *Trainer) { t.shuffle = shuffle }
}

// WithTrainerSeed は走査順の乱数シードを設定する
func WithTrainerSeed(seed int64) TrainerOption {
	return func(t *Trainer) { t.seed = seed }
}

// WithTrainerTol は収束判定の許容誤差を設定する
func WithTrainerTol(tol float64) TrainerOption {
	return func(t *Trainer) { t.tol = tol }
}

// WithTrainerVerbose はプログレスバーの表示を有効にする
func WithTrainerVerbose(verbose bool) TrainerOption {
	return func(t *Trainer) { t.verbose = verbose }
}

// WithTrainerModelName はログに記録するモデル名を設定する
func WithTrainerModelName(name string) TrainerOption {
	return func(t *Trainer) { t.modelName = name }
}

// WithTrainerLogger はログ出力先を設定する（デフォルトはslog.Default）
func WithTrainerLogger(logger *slog.Logger) TrainerOption {
	return func(t *Trainer) { t.logger = logger }
}

// NewTrainer は指定したエポック数のTrainerを作成する。
// エポック数が1未満の場合はValidationErrorを返す。
func NewTrainer(epochs int, options ...TrainerOption) (*Trainer, error) {
	if epochs < 1 {
		return nil, errors.NewValidationError("epochs", "must be at least 1", epochs)
	}

	t := &Trainer{
		epochs:    epochs,
		shuffle:   true,
		seed:      -1,
		tol:       1e-3,
		modelName: "SGDModel",
	}
	for _, opt := range options {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}

	return t, nil
}

// Run はモデルをエポック学習し、診断レコードを遅延ストリームとして返す。
// 学習は受信側がチャネルから読み出すのに合わせて進行する。
// 途中でエラーが発生した場合やコンテキストがキャンセルされた場合は
// チャネルを閉じて停止し、エラーはErrで取得できる。
func (t *Trainer) Run(ctx context.Context, m EpochTrainable, X, y mat.Matrix) <-chan EpochRecord {
	records := make(chan EpochRecord)
	rows, cols := X.Dims()

	go func() {
		defer close(records)

		t.logger.InfoContext(ctx, "training started",
			slog.String(mllog.ModelNameKey, t.modelName),
			slog.String(mllog.OperationKey, "fit"),
			slog.Int(mllog.SamplesKey, rows),
			slog.Int(mllog.FeaturesKey, cols),
		)

		var bar *progressbar.ProgressBar
		if t.verbose {
			bar = progressbar.NewOptions(t.epochs,
				progressbar.OptionSetDescription("training"),
				progressbar.OptionShowCount(),
			)
		}

		history := make([]float64, 0, t.epochs)

		for epoch := 0; epoch < t.epochs; epoch++ {
			order := epochOrder(t.seed, epoch, rows, t.shuffle)

			// 行列アクセスのパニック（範囲外の添字等）もエラーに変換する
			var avgLoss float64
			err := errors.SafeExecute("Trainer.Run", func() error {
				var epochErr error
				avgLoss, epochErr = m.FitEpoch(X, y, order)
				return epochErr
			})
			if err != nil {
				t.setErr(err)
				t.logger.ErrorContext(ctx, "epoch failed",
					slog.String(mllog.ModelNameKey, t.modelName),
					slog.Int(mllog.EpochKey, epoch),
					mllog.ErrAttr(err),
				)
				return
			}

			history = append(history, avgLoss)
			if bar != nil {
				_ = bar.Add(1)
			}

			t.logger.DebugContext(ctx, "epoch finished",
				slog.String(mllog.ModelNameKey, t.modelName),
				slog.Int(mllog.EpochKey, epoch),
				slog.Float64(mllog.LossKey, avgLoss),
				slog.Int64(mllog.StepKey, m.NSteps()),
			)

			record := EpochRecord{
				Epoch:        epoch,
				AvgLoss:      avgLoss,
				Observations: rows,
			}

			select {
			case records <- record:
			case <-ctx.Done():
				t.setErr(ctx.Err())
				return
			}
		}

		if !lossStabilized(history, t.tol) {
			errors.Warn(errors.NewConvergenceWarning(t.modelName, t.epochs, ""))
		}

		t.logger.InfoContext(ctx, "training finished",
			slog.String(mllog.ModelNameKey, t.modelName),
			slog.Int(mllog.EpochKey, t.epochs-1),
			slog.Int64(mllog.StepKey, m.NSteps()),
		)
	}()

	return records
}

// RunAll はRunのストリームをすべて消費し、レコードをまとめて返す
func (t *Trainer) RunAll(ctx context.Context, m EpochTrainable, X, y mat.Matrix) ([]EpochRecord, error) {
	records := make([]EpochRecord, 0, t.epochs)
	for record := range t.Run(ctx, m, X, y) {
		records = append(records, record)
	}
	return records, t.Err()
}

// Err は直近のRunで発生したエラーを返す。
// レコードチャネルが閉じた後に呼び出すこと。
func (t *Trainer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Trainer) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}
