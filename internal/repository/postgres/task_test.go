package postgres

import (
	"strings"
	"testing"

	"github.com/mohitnawani/taskdeck/internal/domain"
)

func TestEscapeLikeNeutralizesMetacharacters(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"50%", `50\%`},
		{"under_score", `under\_score`},
		{`back\slash`, `back\\slash`},
		{`%_\`, `\%\_\\`},
	}
	for _, tc := range cases {
		if got := escapeLike(tc.in); got != tc.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestOrderClauseMapsSortFields(t *testing.T) {
	clause := orderClause(domain.TaskFilter{SortBy: domain.SortByPriority, Order: domain.SortAsc})
	if !strings.Contains(clause, "CASE priority") {
		t.Errorf("priority sort should rank semantically, got %q", clause)
	}
	if !strings.Contains(clause, "ASC") {
		t.Errorf("ascending order lost, got %q", clause)
	}
	if !strings.HasSuffix(clause, "seq ASC") {
		t.Errorf("insertion order tie-break missing, got %q", clause)
	}

	clause = orderClause(domain.TaskFilter{})
	if !strings.HasPrefix(clause, "created_at DESC") {
		t.Errorf("default sort should be newest first, got %q", clause)
	}
}
