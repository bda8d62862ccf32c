package model

import (
	"encoding/json"
	"fmt"
)

// ModelWeights はオンライン線形モデルの状態スナップショット（シリアライゼーション用）。
// 学習率スケジュールの状態（ステップ数）まで含むため、復元後に
// 同一のスケジュールで学習を厳密に再開できる。
type ModelWeights struct {
	// ModelType はモデルの種類（SGDModel等）
	ModelType string `json:"model_type"`

	// Version はフォーマットのバージョン（互換性チェック用）
	Version string `json:"version"`

	// NFeatures は特徴量の数
	NFeatures int `json:"n_features"`

	// Coefficients は重み係数
	Coefficients []float64 `json:"coefficients"`

	// Intercept は切片
	Intercept float64 `json:"intercept"`

	// Loss は損失関数の名前（"hinge", "log", "squared", "huber"）
	Loss string `json:"loss"`

	// Penalty は正則化の種類（"none", "l1", "l2", "elasticnet"）
	Penalty string `json:"penalty"`

	// Alpha は正則化の強度
	Alpha float64 `json:"alpha"`

	// Steps はSGDステップの総数（学習率スケジュールの状態）
	Steps int64 `json:"steps"`

	// IsFitted はモデルが学習済みかどうか
	IsFitted bool `json:"is_fitted"`
}

// ToJSON はModelWeightsをJSON形式にシリアライズ
func (mw *ModelWeights) ToJSON() ([]byte, error) {
	return json.MarshalIndent(mw, "", "  ")
}

// FromJSON はJSON形式からModelWeightsをデシリアライズ
func (mw *ModelWeights) FromJSON(data []byte) error {
	return json.Unmarshal(data, mw)
}

// Validate はModelWeightsの妥当性を検証
func (mw *ModelWeights) Validate() error {
	if mw.ModelType == "" {
		return fmt.Errorf("model_type is required")
	}

	if mw.Version == "" {
		return fmt.Errorf("version is required")
	}

	if mw.IsFitted && len(mw.Coefficients) == 0 {
		return fmt.Errorf("fitted model must have coefficients")
	}

	if len(mw.Coefficients) > 0 && mw.NFeatures != len(mw.Coefficients) {
		return fmt.Errorf("n_features (%d) does not match coefficients length (%d)", mw.NFeatures, len(mw.Coefficients))
	}

	return nil
}

// Clone はModelWeightsのディープコピーを作成
func (mw *ModelWeights) Clone() *ModelWeights {
	clone := *mw
	clone.Coefficients = make([]float64, len(mw.Coefficients))
	copy(clone.Coefficients, mw.Coefficients)
	return &clone
}
