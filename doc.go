// Package goonline provides online (incremental) machine learning for Go,
// built around stochastic gradient descent on linear models.
//
// Models learn from one observation at a time in O(D) per update, which
// makes them suitable for streaming data and datasets that do not fit in
// memory. The API follows scikit-learn conventions: constructors take
// functional options, estimators expose Fit / PartialFit / Predict, and
// inputs are gonum matrices.
//
// # Packages
//
//   - linear_model: SGD linear models (hinge, logistic, squared and Huber
//     losses), a one-vs-rest multiclass wrapper and an epoch training driver
//   - preprocessing: streaming-friendly feature standardization
//   - metrics: classification and regression evaluation
//   - core/model: shared estimator interfaces and model persistence
//   - pkg/errors, pkg/log: structured errors and logging
//
// # Quick Start
//
// Train a binary classifier incrementally:
//
//	sgd, err := linear_model.NewSGDModel(2,
//	    linear_model.WithLoss("hinge"),
//	    linear_model.WithAlpha(0.1),
//	    linear_model.WithRandomState(42),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// ラベルは {-1, +1}
//	if _, err := sgd.PartialFitOne([]float64{1.5, -0.3}, 1.0); err != nil {
//	    log.Fatal(err)
//	}
//
//	score, _ := sgd.DecisionFunctionOne([]float64{1.0, 0.0})
//	fmt.Println(score)
//
// See examples/online_demo for a full multiclass training run with
// standardization, evaluation and a plotted learning curve.
package goonline
