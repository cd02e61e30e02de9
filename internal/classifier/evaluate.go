package classifier

import (
	"sort"

	"rain-platform/internal/models"
)

// Metric names as stored in metrics.json and exported to Prometheus
const (
	MetricAccuracy  = "accuracy"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
	MetricF1        = "f1"
	MetricROCAUC    = "roc_auc"
)

// Confusion counts with rain as the positive class
type Confusion struct {
	TruePositive  int `json:"true_positive"`
	FalsePositive int `json:"false_positive"`
	TrueNegative  int `json:"true_negative"`
	FalseNegative int `json:"false_negative"`
}

// Evaluation is the held-out score of a model
type Evaluation struct {
	Rows      int                `json:"rows"`
	Scores    map[string]float64 `json:"scores"`
	Confusion Confusion          `json:"confusion"`
}

// Evaluate scores m on a labelled table. ROC AUC is left out when the table
// holds a single class; precision and recall are 0 when undefined.
func Evaluate(m *Model, table *models.FeatureTable) (*Evaluation, error) {
	if table == nil || table.Len() == 0 {
		return nil, &models.ConfigurationError{Parameter: "evaluation", Message: "no rows to evaluate"}
	}
	if len(table.Labels) != table.Len() {
		return nil, &models.DataIntegrityError{Column: models.LabelColumn, Message: "every evaluation row needs a label"}
	}

	probs := make([]float64, table.Len())
	var c Confusion
	for i, row := range table.Values {
		label, p, err := m.Predict(row)
		if err != nil {
			return nil, err
		}
		probs[i] = p

		switch {
		case label == 1 && table.Labels[i] == 1:
			c.TruePositive++
		case label == 1:
			c.FalsePositive++
		case table.Labels[i] == 1:
			c.FalseNegative++
		default:
			c.TrueNegative++
		}
	}

	scores := map[string]float64{
		MetricAccuracy:  ratio(c.TruePositive+c.TrueNegative, table.Len()),
		MetricPrecision: ratio(c.TruePositive, c.TruePositive+c.FalsePositive),
		MetricRecall:    ratio(c.TruePositive, c.TruePositive+c.FalseNegative),
	}
	if p, r := scores[MetricPrecision], scores[MetricRecall]; p+r > 0 {
		scores[MetricF1] = 2 * p * r / (p + r)
	} else {
		scores[MetricF1] = 0
	}
	if auc, ok := rocAUC(probs, table.Labels); ok {
		scores[MetricROCAUC] = auc
	}

	return &Evaluation{Rows: table.Len(), Scores: scores, Confusion: c}, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// rocAUC is the Mann-Whitney rank statistic with average ranks for ties
func rocAUC(probs []float64, labels []int) (float64, bool) {
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return probs[order[a]] < probs[order[b]] })

	ranks := make([]float64, len(probs))
	for i := 0; i < len(order); {
		j := i
		for j+1 < len(order) && probs[order[j+1]] == probs[order[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = avg
		}
		i = j + 1
	}

	var pos, neg int
	var rankSum float64
	for i, l := range labels {
		if l == 1 {
			pos++
			rankSum += ranks[i]
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0, false
	}
	return (rankSum - float64(pos*(pos+1))/2) / float64(pos*neg), true
}
