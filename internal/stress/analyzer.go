package stress

import (
	"time"

	"github.com/ahmedMshaban/AuraFlow-sub001/internal/models"
)

// negativeExpressions is the fixed set of emotions that count as stress.
var negativeExpressions = map[models.Expression]bool{
	models.ExpressionAngry:     true,
	models.ExpressionFearful:   true,
	models.ExpressionDisgusted: true,
	models.ExpressionSad:       true,
}

// AnalyzeStress maps an expression vector to a stress verdict. The dominant
// expression is the highest-scoring key, scanning models.ExpressionKeys in
// order; ties keep the earliest key. The stress level is binary (0 or 100),
// never proportional to the dominant score; the raw vector rides along on the
// result for consumers that need magnitude.
func AnalyzeStress(expressions models.ExpressionVector) models.StressResult {
	dominant := models.ExpressionKeys[0]
	max := expressions[dominant]
	for _, key := range models.ExpressionKeys[1:] {
		if expressions[key] > max {
			max = expressions[key]
			dominant = key
		}
	}

	isStressed := negativeExpressions[dominant]
	level := 0
	if isStressed {
		level = 100
	}

	return models.StressResult{
		StressLevel:        level,
		DominantExpression: dominant,
		Expressions:        expressions,
		IsStressed:         isStressed,
		Timestamp:          models.EpochMillis(time.Now()),
	}
}

// IsNegative reports whether an expression belongs to the stress set.
func IsNegative(expression models.Expression) bool {
	return negativeExpressions[expression]
}
