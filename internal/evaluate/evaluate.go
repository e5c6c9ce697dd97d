// Package evaluate computes the held-out evaluation report: per-class
// precision, recall and F1, their macro averages, and the confusion
// matrix. Macro-F1 is the headline number because the disposition mix
// is imbalanced and accuracy would reward the majority class.
package evaluate

import "fmt"

// ClassMetrics holds one row of the classification report. JSON keys
// match the persisted metrics artifact contract.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// Report maps a class name, or "macro avg", to its metrics.
type Report map[string]ClassMetrics

// MacroAvgKey is the report entry holding the unweighted class mean.
const MacroAvgKey = "macro avg"

// ConfusionMatrix counts predictions: rows are true classes, columns
// predicted classes, both in canonical class order.
func ConfusionMatrix(trueLabels, predicted []string, classes []string) ([][]int, error) {
	if len(trueLabels) != len(predicted) {
		return nil, fmt.Errorf("confusion matrix: %d true labels but %d predictions", len(trueLabels), len(predicted))
	}
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	matrix := make([][]int, len(classes))
	for i := range matrix {
		matrix[i] = make([]int, len(classes))
	}
	for i, trueLabel := range trueLabels {
		ti, ok := index[trueLabel]
		if !ok {
			return nil, fmt.Errorf("confusion matrix: unknown true label %q", trueLabel)
		}
		pi, ok := index[predicted[i]]
		if !ok {
			return nil, fmt.Errorf("confusion matrix: unknown predicted label %q", predicted[i])
		}
		matrix[ti][pi]++
	}
	return matrix, nil
}

// ClassificationReport derives per-class precision/recall/F1 and the
// macro average from a confusion matrix. Classes with no predicted
// (or no true) samples score zero rather than dividing by zero.
func ClassificationReport(matrix [][]int, classes []string) Report {
	report := make(Report, len(classes)+1)

	var macroP, macroR, macroF float64
	for i, class := range classes {
		var truePos, falsePos, falseNeg int
		truePos = matrix[i][i]
		for j := range classes {
			if j == i {
				continue
			}
			falsePos += matrix[j][i]
			falseNeg += matrix[i][j]
		}
		support := truePos + falseNeg

		precision := safeDiv(float64(truePos), float64(truePos+falsePos))
		recall := safeDiv(float64(truePos), float64(truePos+falseNeg))
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}

		report[class] = ClassMetrics{
			Precision: precision,
			Recall:    recall,
			F1Score:   f1,
			Support:   support,
		}
		macroP += precision
		macroR += recall
		macroF += f1
	}

	n := float64(len(classes))
	totalSupport := 0
	for _, row := range matrix {
		for _, cell := range row {
			totalSupport += cell
		}
	}
	report[MacroAvgKey] = ClassMetrics{
		Precision: macroP / n,
		Recall:    macroR / n,
		F1Score:   macroF / n,
		Support:   totalSupport,
	}
	return report
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
