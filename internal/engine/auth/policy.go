package auth

import (
	"fmt"
	"strings"

	"caseline/internal/domain"
)

// ActionSet is a bitmask over domain.AllActions.
type ActionSet uint16

func setOf(actions ...domain.Action) ActionSet {
	var s ActionSet
	for _, a := range actions {
		s |= bit(a)
	}
	return s
}

func bit(a domain.Action) ActionSet {
	for i, known := range domain.AllActions {
		if known == a {
			return 1 << uint(i)
		}
	}
	return 0
}

func (s ActionSet) Has(a domain.Action) bool {
	b := bit(a)
	return b != 0 && s&b == b
}

func (s ActionSet) Union(o ActionSet) ActionSet { return s | o }

// Contains reports whether every action of o is in s.
func (s ActionSet) Contains(o ActionSet) bool { return s&o == o }

func (s ActionSet) Empty() bool { return s == 0 }

// Actions lists members in domain.AllActions order.
func (s ActionSet) Actions() []domain.Action {
	out := []domain.Action{}
	for _, a := range domain.AllActions {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

func (s ActionSet) String() string {
	parts := make([]string, 0, len(domain.AllActions))
	for _, a := range s.Actions() {
		parts = append(parts, string(a))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

const (
	edit       = domain.ActionEditData
	assignMgr  = domain.ActionAssignManager
	changeMgr  = domain.ActionChangeManager
	pay        = domain.ActionRegisterPayment
	assignSpec = domain.ActionAssignSpecialist
	changeSpec = domain.ActionChangeSpecialist
	closeCase  = domain.ActionClose
	cancel     = domain.ActionCancel
	override   = domain.ActionOverride
)

var policy = map[domain.Role]map[domain.OperationalState]ActionSet{
	domain.RoleAdmin: {
		domain.StateRegistered:         setOf(edit, assignMgr, cancel, changeMgr, changeSpec, pay),
		domain.StateManagerAssigned:    setOf(edit, pay, assignSpec, cancel, changeMgr, changeSpec),
		domain.StatePaid:               setOf(edit, pay, assignSpec, cancel, changeMgr, changeSpec),
		domain.StateSpecialistAssigned: setOf(edit, pay, closeCase, cancel, changeMgr, changeSpec),
		domain.StateClosed:             setOf(override),
		domain.StateCancelled:          setOf(override),
	},
	domain.RoleOperator: {
		domain.StateRegistered:         setOf(edit, assignMgr, cancel, changeMgr, changeSpec, pay),
		domain.StateManagerAssigned:    setOf(edit, pay, cancel, changeMgr, changeSpec),
		domain.StatePaid:               setOf(edit, pay, cancel, changeMgr, changeSpec),
		domain.StateSpecialistAssigned: setOf(edit, pay, cancel, changeMgr, changeSpec),
		domain.StateClosed:             0,
		domain.StateCancelled:          0,
	},
	domain.RoleManager: {
		domain.StateRegistered:         setOf(edit, cancel, changeMgr, changeSpec, pay),
		domain.StateManagerAssigned:    setOf(edit, pay, assignSpec, cancel, changeMgr, changeSpec),
		domain.StatePaid:               setOf(edit, pay, assignSpec, cancel, changeMgr, changeSpec),
		domain.StateSpecialistAssigned: setOf(edit, pay, cancel, changeMgr, changeSpec),
		domain.StateClosed:             0,
		domain.StateCancelled:          0,
	},
	domain.RoleSpecialist: {
		domain.StateRegistered:         setOf(edit, cancel, changeMgr, changeSpec, pay),
		domain.StateManagerAssigned:    setOf(edit, cancel, changeMgr, changeSpec),
		domain.StatePaid:               setOf(edit, cancel, changeMgr, changeSpec),
		domain.StateSpecialistAssigned: setOf(edit, closeCase, cancel, changeMgr, changeSpec),
		domain.StateClosed:             0,
		domain.StateCancelled:          0,
	},
}

func init() {
	if err := checkPolicy(policy); err != nil {
		panic(err)
	}
}

func checkPolicy(p map[domain.Role]map[domain.OperationalState]ActionSet) error {
	for _, r := range domain.AllRoles {
		states, ok := p[r]
		if !ok {
			return fmt.Errorf("policy: role %s has no entries", r)
		}
		for _, st := range domain.AllStates {
			set, ok := states[st]
			if !ok {
				return fmt.Errorf("policy: role %s has no entry for state %s", r, st)
			}
			if st.Terminal() {
				want := ActionSet(0)
				if r == domain.RoleAdmin {
					want = setOf(override)
				}
				if set != want {
					return fmt.Errorf("policy: role %s in terminal state %s allows %s", r, st, set)
				}
				continue
			}
			if set.Has(override) {
				return fmt.Errorf("policy: role %s allows OVERRIDE in non-terminal state %s", r, st)
			}
			if r != domain.RoleAdmin && !p[domain.RoleAdmin][st].Contains(set) {
				return fmt.Errorf("policy: ADMIN in state %s lacks actions allowed to %s", st, r)
			}
		}
	}
	return nil
}

// AllowedActions is the union of the actions each role may perform in state.
// Unknown roles contribute nothing.
func AllowedActions(roles []domain.Role, state domain.OperationalState) ActionSet {
	var out ActionSet
	for _, r := range roles {
		out |= policy[r][state]
	}
	return out
}

func IsAllowed(roles []domain.Role, state domain.OperationalState, action domain.Action) bool {
	return AllowedActions(roles, state).Has(action)
}

// PolicyRow is what one role may do in one state.
type PolicyRow struct {
	Role    domain.Role             `json:"role"`
	State   domain.OperationalState `json:"state"`
	Actions []domain.Action         `json:"actions"`
}

// Matrix renders the whole policy, roles and states in declaration order.
func Matrix() []PolicyRow {
	rows := make([]PolicyRow, 0, len(domain.AllRoles)*len(domain.AllStates))
	for _, r := range domain.AllRoles {
		for _, st := range domain.AllStates {
			rows = append(rows, PolicyRow{Role: r, State: st, Actions: policy[r][st].Actions()})
		}
	}
	return rows
}
