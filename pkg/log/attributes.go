// Package log defines standard attribute keys for online learning operations.
//
// This file contains predefined attribute keys that provide consistency across
// all logging operations in goonline. Using these standard keys enables better
// log analysis, monitoring, and debugging of training runs.
//
// The keys follow a hierarchical naming convention (e.g., "model.name",
// "data.samples") to enable structured log analysis and filtering.

package log

// Model and Operation Context
// These attributes identify the model type, instance, and operation being performed.
const (
	// ModelNameKey identifies the type of model.
	// Examples: "SGDModel", "OneVsRest", "StandardScaler"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "partial_fit", "predict", "transform", "score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	// Examples: "linear_model", "preprocessing", "metrics"
	ComponentKey = "ml.component"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	// Important for debugging shape mismatches.
	FeaturesKey = "data.features"

	// ClassesKey indicates the number of distinct class labels.
	ClassesKey = "data.classes"
)

// Training Progress
const (
	// EpochKey records the current epoch number during training.
	EpochKey = "training.epoch"

	// LossKey records the average loss for the completed epoch.
	LossKey = "training.loss"

	// StepKey records the total number of SGD steps taken so far.
	StepKey = "training.step"

	// LearningRateKey records the effective step size at the current step.
	LearningRateKey = "training.learning_rate"

	// AccuracyKey records accuracy for evaluation operations.
	// Range [0.0, 1.0].
	AccuracyKey = "metrics.accuracy"

	// RMSEKey records root-mean-squared error for regression evaluation.
	RMSEKey = "metrics.rmse"
)
