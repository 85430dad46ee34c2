package validate

// LayerWeights are the fixed contributions to the overall compliance score. Data quality is
// reported on its own and does not contribute.
var LayerWeights = map[Layer]float64{
	Structural:  0.30,
	Business:    0.40,
	Terminology: 0.20,
	CrossDomain: 0.10,
}

// DefaultThreshold is the overall score a dataset needs to be submission-ready.
const DefaultThreshold = 95.0

// LayerScore maps the weighted findings of a layer onto [0,100]:
// 100 / (1 + penalty/checked). Any new weighted finding strictly lowers the score.
func LayerScore(findings []Finding, checked int) float64 {
	if checked < 1 {
		checked = 1
	}
	penalty := 0.0
	for _, f := range findings {
		penalty += f.Severity.Weight()
	}
	return 100 / (1 + penalty/float64(checked))
}

// Overall combines layer scores with LayerWeights.
func Overall(scores map[Layer]float64) float64 {
	total := 0.0
	for _, layer := range Layers {
		total += LayerWeights[layer] * scores[layer]
	}
	return total
}

// Ready applies the submission-readiness rule: the score must reach the threshold and no critical
// finding may exist, whatever the score.
func Ready(overall, threshold float64, critical int) bool {
	return critical == 0 && overall >= threshold
}

// Band classifies a score for human-facing summaries.
func Band(score float64) string {
	switch {
	case score >= 90:
		return "EXCELLENT"
	case score >= 75:
		return "GOOD"
	case score >= 50:
		return "FAIR"
	}
	return "POOR"
}
