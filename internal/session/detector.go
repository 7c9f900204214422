package session

import (
	"fmt"
	"strings"
)

// MomentCandidate is a detected key-moment suggestion. It carries no id or
// timestamp; callers decide whether to persist it.
type MomentCandidate struct {
	Type    MomentType
	Title   string
	Summary string
}

// Keyword families per category. Matching is case-insensitive substring over
// the message content; both English and Russian word lists are recognised.
var (
	errorKeywords = []string{
		"error", "fix", "solved", "resolved", "bug", "issue", "problem",
		"ошибка", "исправлен", "решен", "решена", "исправлена", "починен", "починена",
		"баг", "проблема", "устранен", "устранена", "фикс", "исправление",
	}
	creationActions = []string{
		"create", "write", "add", "создать", "написать", "добавить",
	}
	completionKeywords = []string{
		"completed", "finished", "done", "implemented", "ready", "success",
		"завершен", "завершена", "готов", "готова", "выполнен", "выполнена",
		"реализован", "реализована", "закончен", "закончена", "сделан", "сделана",
	}
	configKeywords = []string{
		"config", "settings", "yaml", "json", "configuration",
		"конфигурация", "настройки", "настройка", "конфиг", "параметры",
	}
	refactoringKeywords = []string{
		"refactor", "refactored", "restructure", "optimize", "optimized",
		"рефакторинг", "рефакторил", "рефакторила", "оптимизирован", "оптимизирована",
		"переработан", "переработана", "реструктуризация", "улучшен", "улучшена",
	}
	decisionKeywords = []string{
		"decided", "decision", "choice", "selected", "approach",
		"решил", "решила", "решение", "выбор", "подход", "стратегия",
		"принято решение", "выбран", "выбрана",
	}
)

// DetectKeyMoments classifies a message into zero or more key-moment
// candidates. Each category is evaluated independently, so a single message
// may yield several candidates. Categories are checked in a fixed order:
// error, file creation, completion, config, refactoring, decision.
func DetectKeyMoments(content string, actions []string, files []string) []MomentCandidate {
	var moments []MomentCandidate
	lower := strings.ToLower(content)

	if containsAny(lower, errorKeywords) {
		moments = append(moments, MomentCandidate{
			Type:    MomentErrorSolved,
			Title:   "Error solved",
			Summary: "Detected and fixed: " + excerpt(content),
		})
	}

	if hasAction(actions, creationActions) && len(files) > 0 {
		moments = append(moments, MomentCandidate{
			Type:    MomentFileCreated,
			Title:   fmt.Sprintf("Created file %s", files[0]),
			Summary: fmt.Sprintf("Created file %s with functionality: %s", files[0], excerpt(content)),
		})
	}

	if containsAny(lower, completionKeywords) {
		moments = append(moments, MomentCandidate{
			Type:    MomentFeatureCompleted,
			Title:   "Feature completed",
			Summary: "Implemented feature: " + excerpt(content),
		})
	}

	if containsAny(lower, configKeywords) && len(files) > 0 {
		moments = append(moments, MomentCandidate{
			Type:    MomentConfigChanged,
			Title:   "Configuration changed",
			Summary: fmt.Sprintf("Updated configuration in %s: %s", files[0], excerpt(content)),
		})
	}

	if containsAny(lower, refactoringKeywords) {
		moments = append(moments, MomentCandidate{
			Type:    MomentRefactoring,
			Title:   "Code refactored",
			Summary: "Refactoring performed: " + excerpt(content),
		})
	}

	if containsAny(lower, decisionKeywords) {
		moments = append(moments, MomentCandidate{
			Type:    MomentImportantDecision,
			Title:   "Important decision",
			Summary: "Decision made: " + excerpt(content),
		})
	}

	return moments
}

// excerpt returns the first 200 characters of content followed by an ellipsis.
// Fixed contract: the ellipsis is appended even when content is shorter.
func excerpt(content string) string {
	runes := []rune(content)
	if len(runes) > 200 {
		runes = runes[:200]
	}
	return string(runes) + "..."
}

func containsAny(haystack string, words []string) bool {
	for _, w := range words {
		if strings.Contains(haystack, w) {
			return true
		}
	}
	return false
}

// hasAction reports whether any performed action is in the given set.
// Exact match: "create" matches, "create_file" does not.
func hasAction(actions, set []string) bool {
	for _, a := range actions {
		for _, s := range set {
			if a == s {
				return true
			}
		}
	}
	return false
}
