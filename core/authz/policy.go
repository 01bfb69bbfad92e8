package authz

type (
	// requirement lists the resource fields a rule reads.
	requirement int

	rule struct {
		name     string
		actions  []Action
		kinds    []ResourceKind
		requires requirement
		eval     func(e *Engine, p Principal, r Resource) Decision
	}
)

const (
	needsOwner requirement = 1 << iota
	needsCohorts
	needsStudent
)

func (r rule) applies(action Action, kind ResourceKind) bool {
	return containsAction(r.actions, action) && containsKind(r.kinds, kind)
}

// policy is evaluated in order; the first rule matching (action, kind) decides.
var policy = []rule{
	{
		name:    "teacher-only creation",
		actions: []Action{ActionCreate},
		kinds:   []ResourceKind{ResourceCourse, ResourceAnnouncement},
		eval: func(_ *Engine, p Principal, _ Resource) Decision {
			return requireRole(p, RoleTeacher)
		},
	},
	{
		name:     "assignment creation in an owned course",
		actions:  []Action{ActionCreate},
		kinds:    []ResourceKind{ResourceAssignment},
		requires: needsOwner,
		eval: func(_ *Engine, p Principal, r Resource) Decision {
			if d := requireRole(p, RoleTeacher); !d.Allowed {
				return d
			}
			return requireOwner(p, r)
		},
	},
	{
		name:     "student-only submission",
		actions:  []Action{ActionCreate},
		kinds:    []ResourceKind{ResourceSubmission},
		requires: needsCohorts,
		eval: func(_ *Engine, p Principal, r Resource) Decision {
			if d := requireRole(p, RoleStudent); !d.Allowed {
				return d
			}
			return requireCohort(p, r)
		},
	},
	{
		name:     "owner-gated mutation",
		actions:  []Action{ActionUpdate, ActionDelete, ActionUpload},
		kinds:    []ResourceKind{ResourceCourse, ResourceAnnouncement, ResourceAssignment},
		requires: needsOwner,
		eval:     ownerMutation,
	},
	{
		name:     "owner-gated grading",
		actions:  []Action{ActionGrade},
		kinds:    []ResourceKind{ResourceSubmission},
		requires: needsOwner,
		eval:     ownerMutation,
	},
	{
		name:     "course read",
		actions:  []Action{ActionRead},
		kinds:    []ResourceKind{ResourceCourse},
		requires: needsOwner | needsCohorts,
		eval:     catalogRead,
	},
	{
		// an announcement whose courses were all deleted has no cohorts left
		name:     "announcement read",
		actions:  []Action{ActionRead},
		kinds:    []ResourceKind{ResourceAnnouncement},
		requires: needsOwner,
		eval:     catalogRead,
	},
	{
		name:     "enrolled read",
		actions:  []Action{ActionRead},
		kinds:    []ResourceKind{ResourceAssignment, ResourceFile},
		requires: needsOwner | needsCohorts,
		eval: func(_ *Engine, p Principal, r Resource) Decision {
			return cohortOrOwnerRead(p, r)
		},
	},
	{
		name:     "submission read",
		actions:  []Action{ActionRead},
		kinds:    []ResourceKind{ResourceSubmission},
		requires: needsOwner | needsStudent,
		eval: func(_ *Engine, p Principal, r Resource) Decision {
			switch {
			case p.IsAnonymous():
				return deny(ReasonDenyUnauthenticated)
			case p.IsStudent() && p.ID == r.StudentID:
				return allow(ReasonAllowOwner)
			case p.IsTeacher() && p.ID == r.OwnerID:
				return allow(ReasonAllowOwner)
			}
			return deny(ReasonDenyOwnerMismatch)
		},
	},
	{
		name:    "teacher-only user directory",
		actions: []Action{ActionRead},
		kinds:   []ResourceKind{ResourceUserList},
		eval: func(_ *Engine, p Principal, _ Resource) Decision {
			return requireRole(p, RoleTeacher)
		},
	},
	{
		name:     "student completion marking",
		actions:  []Action{ActionMarkComplete},
		kinds:    []ResourceKind{ResourceFile},
		requires: needsCohorts,
		eval: func(_ *Engine, p Principal, r Resource) Decision {
			if d := requireRole(p, RoleStudent); !d.Allowed {
				return d
			}
			return requireCohort(p, r)
		},
	},
}

func requireRole(p Principal, role Role) Decision {
	if p.IsAnonymous() {
		return deny(ReasonDenyUnauthenticated)
	}
	if p.Role != role {
		return deny(ReasonDenyRoleRequired)
	}
	return allow(ReasonAllowRole)
}

func requireOwner(p Principal, r Resource) Decision {
	if p.ID != r.OwnerID {
		return deny(ReasonDenyOwnerMismatch)
	}
	return allow(ReasonAllowOwner)
}

func requireCohort(p Principal, r Resource) Decision {
	if !r.matchesCohort(p.Cohort) {
		return deny(ReasonDenyCohortMismatch)
	}
	return allow(ReasonAllowCohort)
}

func ownerMutation(_ *Engine, p Principal, r Resource) Decision {
	if d := requireRole(p, RoleTeacher); !d.Allowed {
		return d
	}
	return requireOwner(p, r)
}

func catalogRead(e *Engine, p Principal, r Resource) Decision {
	if p.IsAnonymous() && e.publicCatalog {
		return allow(ReasonAllowPublicCatalog)
	}
	return cohortOrOwnerRead(p, r)
}

func cohortOrOwnerRead(p Principal, r Resource) Decision {
	switch {
	case p.IsAnonymous():
		return deny(ReasonDenyUnauthenticated)
	case p.IsStudent():
		return requireCohort(p, r)
	case p.IsTeacher():
		return requireOwner(p, r)
	}
	return deny(ReasonDenyRoleRequired)
}

func containsAction(actions []Action, a Action) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

func containsKind(kinds []ResourceKind, k ResourceKind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}
