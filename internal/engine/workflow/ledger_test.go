package workflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"caseline/internal/domain"
)

func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func currentCount(agg Aggregate, role domain.Role) int {
	n := 0
	for _, a := range agg.Assignments {
		if a.Role == role && a.IsCurrent {
			n++
		}
	}
	return n
}

func TestLedgerAssignSupersedesCurrentHolder(t *testing.T) {
	agg := Aggregate{Case: domain.Case{ID: "case-1"}}
	l := NewLedger(&agg, seqIDs("asg"))

	first := l.Assign(domain.Staff{PersonID: "m1", Name: "Ana Diaz", Role: domain.RoleManager, Active: true}, "op", "2026-01-01T10:00:00Z")
	require.Nil(t, first.Previous)
	require.Nil(t, first.PreviousName)
	require.Equal(t, "Ana Diaz", first.CurrentName)

	second := l.Assign(domain.Staff{PersonID: "m2", Name: "Luis Paz", Role: domain.RoleManager, Active: true}, "admin", "2026-01-02T10:00:00Z")
	require.NotNil(t, second.Previous)
	require.Equal(t, "m1", second.Previous.PersonID)
	require.Equal(t, "Ana Diaz", *second.PreviousName)
	require.Equal(t, "admin", *second.Previous.SupersededBy)
	require.Equal(t, "2026-01-02T10:00:00Z", *second.Previous.SupersededAt)

	require.Equal(t, 1, currentCount(agg, domain.RoleManager))
	require.Equal(t, "m2", agg.Current(domain.RoleManager).PersonID)
	require.Len(t, l.Superseded(), 1)
	require.Len(t, l.Inserted(), 2)
}

func TestLedgerReassignSameHolder(t *testing.T) {
	agg := Aggregate{Case: domain.Case{ID: "case-1"}}
	l := NewLedger(&agg, seqIDs("asg"))
	staff := domain.Staff{PersonID: "s1", Name: "Eva Rios", Role: domain.RoleSpecialist, Active: true}
	l.Assign(staff, "op", "2026-01-01T10:00:00Z")
	change := l.Assign(staff, "op", "2026-01-01T11:00:00Z")

	require.Equal(t, "Eva Rios", *change.PreviousName)
	require.Equal(t, "Eva Rios", change.CurrentName)
	require.Equal(t, 1, currentCount(agg, domain.RoleSpecialist))
	require.Len(t, agg.Assignments, 2)
}

func TestLedgerRolesAreIndependent(t *testing.T) {
	agg := Aggregate{Case: domain.Case{ID: "case-1"}}
	l := NewLedger(&agg, seqIDs("asg"))
	l.Assign(domain.Staff{PersonID: "m1", Role: domain.RoleManager, Active: true}, "op", "t1")
	change := l.Assign(domain.Staff{PersonID: "s1", Role: domain.RoleSpecialist, Active: true}, "op", "t2")

	require.Nil(t, change.Previous)
	require.Equal(t, "s1", change.CurrentName)
	require.Equal(t, 1, currentCount(agg, domain.RoleManager))
	require.Equal(t, 1, currentCount(agg, domain.RoleSpecialist))
}
