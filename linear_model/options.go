package linear_model

import (
	"github.com/itskaykayleigh/goonline/pkg/errors"
)

// SGDOption はSGDModelのハイパーパラメータを設定する関数オプション
type SGDOption func(*SGDModel) error

// WithLoss は損失関数を名前で設定する（"hinge", "log", "squared", "huber"）
func WithLoss(name string) SGDOption {
	return func(sgd *SGDModel) error {
		loss, err := ParseLoss(name)
		if err != nil {
			return err
		}
		sgd.loss = loss
		return nil
	}
}

// WithLossFunc は損失関数を直接設定する
func WithLossFunc(loss Loss) SGDOption {
	return func(sgd *SGDModel) error {
		if loss == nil {
			return errors.NewValidationError("loss", "must not be nil", nil)
		}
		sgd.loss = loss
		return nil
	}
}

// WithPenalty は正則化の種類を設定する（"none", "l1", "l2", "elasticnet"）
func WithPenalty(penalty string) SGDOption {
	return func(sgd *SGDModel) error {
		switch penalty {
		case PenaltyNone, PenaltyL1, PenaltyL2, PenaltyElasticNet:
			sgd.penalty = penalty
			return nil
		default:
			return errors.NewValidationError("penalty", "unknown penalty", penalty)
		}
	}
}

// WithAlpha は正則化の強度を設定する
func WithAlpha(alpha float64) SGDOption {
	return func(sgd *SGDModel) error {
		sgd.alpha = alpha
		return nil
	}
}

// WithL1Ratio はElastic NetのL1比率を設定する（0でL2、1でL1と等価）
func WithL1Ratio(ratio float64) SGDOption {
	return func(sgd *SGDModel) error {
		sgd.l1Ratio = ratio
		return nil
	}
}

// WithFitIntercept は切片を学習するかどうかを設定する
func WithFitIntercept(fit bool) SGDOption {
	return func(sgd *SGDModel) error {
		sgd.fitIntercept = fit
		return nil
	}
}

// WithLearningRate は学習率スケジュールを設定する
// （"constant", "optimal", "invscaling"）
func WithLearningRate(schedule string) SGDOption {
	return func(sgd *SGDModel) error {
		switch schedule {
		case ScheduleConstant, ScheduleOptimal, ScheduleInvScaling:
			sgd.learningRate = schedule
			return nil
		default:
			return errors.NewValidationError("learning_rate", "unknown schedule", schedule)
		}
	}
}

// WithEta0 は初期学習率を設定する
func WithEta0(eta0 float64) SGDOption {
	return func(sgd *SGDModel) error {
		if eta0 <= 0 {
			return errors.NewValidationError("eta0", "must be positive", eta0)
		}
		sgd.eta0 = eta0
		return nil
	}
}

// WithPowerT はinvscalingスケジュールの指数を設定する
func WithPowerT(powerT float64) SGDOption {
	return func(sgd *SGDModel) error {
		sgd.powerT = powerT
		return nil
	}
}

// WithShuffle はエポックごとのシャッフルを有効・無効にする
func WithShuffle(shuffle bool) SGDOption {
	return func(sgd *SGDModel) error {
		sgd.shuffle = shuffle
		return nil
	}
}

// WithRandomState は乱数シードを設定する（再現可能な学習のため）
func WithRandomState(seed int64) SGDOption {
	return func(sgd *SGDModel) error {
		sgd.randomState = seed
		return nil
	}
}

// WithTol は収束判定の許容誤差を設定する
func WithTol(tol float64) SGDOption {
	return func(sgd *SGDModel) error {
		if tol < 0 {
			return errors.NewValidationError("tol", "must be non-negative", tol)
		}
		sgd.tol = tol
		return nil
	}
}
