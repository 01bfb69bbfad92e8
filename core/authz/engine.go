package authz

// Engine evaluates the policy. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	publicCatalog bool
}

// NewEngine returns an Engine. With publicCatalog, anonymous principals may
// list and read courses and announcements.
func NewEngine(publicCatalog bool) *Engine {
	return &Engine{publicCatalog: publicCatalog}
}

// Authorize decides whether p may perform action on r.
// A denial is a Decision, never an error: the only error returned is a
// *MissingFieldError when r lacks a field the matching rule reads.
func (e *Engine) Authorize(p Principal, action Action, r Resource) (Decision, error) {
	for _, rl := range policy {
		if !rl.applies(action, r.Kind) {
			continue
		}
		if err := checkFields(rl.requires, r); err != nil {
			return Decision{}, err
		}
		return rl.eval(e, p, r), nil
	}
	return deny(ReasonDenyNoMatchingRule), nil
}

// Require is Authorize folded into a single error: nil when allowed,
// a *DenyError when denied, or a *MissingFieldError.
func (e *Engine) Require(p Principal, action Action, r Resource) error {
	d, err := e.Authorize(p, action, r)
	if err != nil {
		return err
	}
	return d.Err()
}

func checkFields(req requirement, r Resource) error {
	if req&needsOwner != 0 && r.OwnerID == "" {
		return &MissingFieldError{Kind: r.Kind, Field: "owner_id"}
	}
	if req&needsCohorts != 0 {
		if len(r.Cohorts) == 0 {
			return &MissingFieldError{Kind: r.Kind, Field: "cohorts"}
		}
		for _, c := range r.Cohorts {
			if c.IsZero() {
				return &MissingFieldError{Kind: r.Kind, Field: "cohorts"}
			}
		}
	}
	if req&needsStudent != 0 && r.StudentID == "" {
		return &MissingFieldError{Kind: r.Kind, Field: "student_id"}
	}
	return nil
}

// Scope is the breadth of a visibility filter.
type Scope int

const (
	ScopeNone   Scope = iota // nothing is visible
	ScopeAll                 // public catalogue
	ScopeOwner               // resources owned by OwnerID
	ScopeCohort              // resources readable by Cohort
)

// Filter restricts a listing to the resources a principal may see.
// Storage layers translate it into their own query.
type Filter struct {
	Kind    ResourceKind
	Scope   Scope
	OwnerID string
	Cohort  Cohort
}

// Match reports whether r is selected by f.
func (f Filter) Match(r Resource) bool {
	if r.Kind != f.Kind {
		return false
	}
	switch f.Scope {
	case ScopeAll:
		return true
	case ScopeOwner:
		return r.OwnerID == f.OwnerID
	case ScopeCohort:
		return r.matchesCohort(f.Cohort)
	}
	return false
}

// VisibilityFilter returns the listing filter of kind for p.
// Only courses and announcements are listable catalogues; any other kind yields ScopeNone.
func (e *Engine) VisibilityFilter(p Principal, kind ResourceKind) Filter {
	f := Filter{Kind: kind, Scope: ScopeNone}
	if kind != ResourceCourse && kind != ResourceAnnouncement {
		return f
	}

	switch {
	case p.IsAnonymous():
		if e.publicCatalog {
			f.Scope = ScopeAll
		}
	case p.IsTeacher():
		f.Scope = ScopeOwner
		f.OwnerID = p.ID
	case p.IsStudent():
		f.Scope = ScopeCohort
		f.Cohort = p.Cohort
	}
	return f
}
