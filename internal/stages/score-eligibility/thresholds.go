// internal/stages/score-eligibility/thresholds.go
package scoreeligibility

// Metrics is a model's precision/recall curve as published by training.
// precision has one more entry than thresholds, matching the curve layout.
type Metrics struct {
	Precision  []float64 `json:"precision"`
	Recall     []float64 `json:"recall"`
	Thresholds []float64 `json:"thresholds"`
	ROCAUC     float64   `json:"roc_auc"`
}

// Thresholds is the active decision-band pair.
type Thresholds struct {
	Approve float64 `json:"approve"`
	Review  float64 `json:"review"`
}

// PickThresholds selects the approve cut as the largest threshold whose
// precision meets targetPrecision, never below 0.5. The review cut sits
// halfway between the approve cut and 0.5.
func PickThresholds(metrics Metrics, targetPrecision float64) Thresholds {
	best := 0.5
	n := len(metrics.Thresholds)
	if len(metrics.Precision)-1 < n {
		n = len(metrics.Precision) - 1
	}
	for i := 0; i < n; i++ {
		if metrics.Precision[i] >= targetPrecision && metrics.Thresholds[i] > best {
			best = metrics.Thresholds[i]
		}
	}
	return Thresholds{
		Approve: best,
		Review:  (best + 0.5) / 2.0,
	}
}
