package compliance

import (
	"fmt"
	"strings"

	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

// DefaultCompletedStatusName is the taxonomy name that denotes completion.
const DefaultCompletedStatusName = "Completed"

// StatusDefinition is one row of a tenant's task status taxonomy.
type StatusDefinition struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Rank int    `json:"rank" yaml:"rank"`
}

// ResolveCompletedID finds the single status id that denotes a completed task.
//
// When override is non-zero it must be present in statuses. Otherwise exactly
// one status must be named completedName (case-insensitive; blank means
// DefaultCompletedStatusName). Any other outcome is an
// ErrCodeStatusTaxonomyInconsistent error: callers must fail rather than guess.
func ResolveCompletedID(statuses []StatusDefinition, completedName string, override int64) (int64, error) {
	if override != 0 {
		for _, s := range statuses {
			if s.ID == override {
				return override, nil
			}
		}
		return 0, taxonomyError(fmt.Sprintf("configured completed status id %d is not in the taxonomy", override))
	}

	name := strings.TrimSpace(completedName)
	if name == "" {
		name = DefaultCompletedStatusName
	}
	var matches []int64
	for _, s := range statuses {
		if strings.EqualFold(strings.TrimSpace(s.Name), name) {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return 0, taxonomyError(fmt.Sprintf("no status named %q among %d statuses", name, len(statuses)))
	default:
		return 0, taxonomyError(fmt.Sprintf("%d statuses named %q: %v", len(matches), name, matches))
	}
}

func taxonomyError(detail string) error {
	return errors.New(errors.ErrCodeStatusTaxonomyInconsistent, "task status taxonomy does not define a unique completed status").
		WithDetail(detail)
}

// IsInconsistentTaxonomy reports whether err came from ResolveCompletedID.
func IsInconsistentTaxonomy(err error) bool {
	return errors.IsCode(err, errors.ErrCodeStatusTaxonomyInconsistent)
}
