package dispatch

import (
	"fmt"
	"strings"

	"github.com/joss/ensemble/internal/domain"
)

// promptFor renders the provider prompt for an operation.
func promptFor(op domain.Operation) string {
	switch op.Kind {
	case domain.KindTranslate:
		return fmt.Sprintf(
			"Translate the following %s code to %s. Preserve behavior exactly. Return only the translated code, no explanation.\n\n%s",
			op.SourceKind, op.TargetKind, op.Source)
	case domain.KindAnalyze:
		cats := "performance, security, readability, maintainability, architecture, best_practices, error_handling"
		if len(op.Categories) > 0 {
			cats = strings.Join(op.Categories, ", ")
		}
		return fmt.Sprintf(
			"Analyze the following %s code and return improvement suggestions as a JSON array. "+
				"Each element: {\"text\", \"category\", \"priority\", \"effort\", \"impact\", \"before\", \"after\"}. "+
				"Allowed categories: %s. Priority one of critical|high|medium|low; effort and impact one of low|medium|high. "+
				"Return only JSON.\n\n%s",
			op.SourceKind, cats, op.Source)
	default:
		return op.Source
	}
}
