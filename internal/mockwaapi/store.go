package mockwaapi

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Well-known roots of the mock project.
const (
	ActorMixerRoot  = `\Actor-Mixer Hierarchy`
	DefaultWorkUnit = `\Actor-Mixer Hierarchy\Default Work Unit`
	SwitchesRoot    = `\Switches`
)

// Fault is a procedure failure. The router sends it as an ERROR whose
// keyword payload carries Message.
type Fault struct {
	URI     string
	Message string
}

func (f *Fault) Error() string { return f.URI + ": " + f.Message }

// Error URIs used by the mock.
const (
	FaultInvalidArguments = "ak.wwise.invalid_arguments"
	FaultInvalidObject    = "ak.wwise.invalid_object"
	FaultInvalidState     = "ak.wwise.invalid_state"
)

func invalidArgs(format string, a ...any) *Fault {
	return &Fault{URI: FaultInvalidArguments, Message: fmt.Sprintf(format, a...)}
}

// Change is one notification produced by a mutation.
type Change struct {
	Topic   string
	Payload map[string]any
}

type object struct {
	id       string
	name     string
	typ      string
	parent   string
	children []string
	notes    string
	props    map[string]any
	refs     map[string]string
}

// Assignment maps a switch container child to a switch or state.
type Assignment struct {
	Child         string `json:"child"`
	StateOrSwitch string `json:"stateOrSwitch"`
}

// tree is the undoable part of the project.
type tree struct {
	objects     map[string]*object
	assignments map[string][]Assignment
}

func (t *tree) clone() *tree {
	c := &tree{
		objects:     make(map[string]*object, len(t.objects)),
		assignments: make(map[string][]Assignment, len(t.assignments)),
	}
	for id, o := range t.objects {
		cp := *o
		cp.children = append([]string(nil), o.children...)
		cp.props = make(map[string]any, len(o.props))
		for k, v := range o.props {
			cp.props[k] = v
		}
		cp.refs = make(map[string]string, len(o.refs))
		for k, v := range o.refs {
			cp.refs[k] = v
		}
		c.objects[id] = &cp
	}
	for k, v := range t.assignments {
		c.assignments[k] = append([]Assignment(nil), v...)
	}
	return c
}

func (t *tree) path(id string) string {
	var parts []string
	for o := t.objects[id]; o != nil; o = t.objects[o.parent] {
		parts = append(parts, o.name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return `\` + strings.Join(parts, `\`)
}

// resolve accepts an object GUID or an absolute path.
func (t *tree) resolve(ref string) (*object, bool) {
	if o, ok := t.objects[ref]; ok {
		return o, true
	}
	if !strings.HasPrefix(ref, `\`) {
		return nil, false
	}
	for id, o := range t.objects {
		if t.path(id) == ref {
			return o, true
		}
	}
	return nil, false
}

func (t *tree) child(parent, name string) *object {
	p := t.objects[parent]
	if p == nil {
		return nil
	}
	for _, id := range p.children {
		if c := t.objects[id]; c != nil && strings.EqualFold(c.name, name) {
			return c
		}
	}
	return nil
}

func (t *tree) add(parent *object, typ, name string) *object {
	o := &object{
		id:    newGUID(),
		name:  name,
		typ:   typ,
		props: make(map[string]any),
		refs:  make(map[string]string),
	}
	if parent != nil {
		o.parent = parent.id
		parent.children = append(parent.children, o.id)
	}
	t.objects[o.id] = o
	return o
}

func (t *tree) detach(o *object) {
	p := t.objects[o.parent]
	if p == nil {
		return
	}
	for i, id := range p.children {
		if id == o.id {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
}

func (t *tree) remove(o *object) {
	for _, id := range append([]string(nil), o.children...) {
		if c := t.objects[id]; c != nil {
			t.remove(c)
		}
	}
	t.detach(o)
	delete(t.objects, o.id)
	delete(t.assignments, o.id)
}

// uniqueName appends _01, _02, ... until name is free under parent.
func (t *tree) uniqueName(parent, name string) string {
	if t.child(parent, name) == nil {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%02d", name, i)
		if t.child(parent, candidate) == nil {
			return candidate
		}
	}
}

func (t *tree) isDescendant(id, ancestor string) bool {
	for o := t.objects[id]; o != nil; o = t.objects[o.parent] {
		if o.id == ancestor {
			return true
		}
	}
	return false
}

type step struct {
	label string
	state *tree
}

// Store holds the mock project: an object tree with an undo history that
// honours undo groups, plus the UI selection.
type Store struct {
	mu         sync.RWMutex
	cur        *tree
	undo       []step
	redo       []step
	groupDepth int
	groupStart *tree
	selection  []string
}

func newGUID() string {
	return "{" + strings.ToUpper(uuid.NewString()) + "}"
}

// NewStore creates a project with the default hierarchies and one switch group.
func NewStore() *Store {
	t := &tree{objects: make(map[string]*object), assignments: make(map[string][]Assignment)}
	amh := t.add(nil, "Folder", "Actor-Mixer Hierarchy")
	t.add(amh, "WorkUnit", "Default Work Unit")
	sw := t.add(nil, "Folder", "Switches")
	swu := t.add(sw, "WorkUnit", "Default Work Unit")
	surface := t.add(swu, "SwitchGroup", "Surface")
	for _, name := range []string{"Grass", "Gravel", "Wood"} {
		t.add(surface, "Switch", name)
	}
	return &Store{cur: t}
}

// ObjectView is the JSON shape of an object with every field available.
type ObjectView map[string]any

func (t *tree) view(o *object) ObjectView {
	v := ObjectView{
		"id":            o.id,
		"name":          o.name,
		"type":          o.typ,
		"path":          t.path(o.id),
		"childrenCount": len(o.children),
	}
	if p := t.objects[o.parent]; p != nil {
		v["parent"] = map[string]any{"id": p.id, "name": p.name}
	}
	if o.notes != "" {
		v["notes"] = o.notes
	}
	for k, val := range o.props {
		v["@"+k] = val
	}
	for k, val := range o.refs {
		if r := t.objects[val]; r != nil {
			v["@"+k] = map[string]any{"id": r.id, "name": r.name}
		}
	}
	return v
}

// Project narrows v to the requested return fields, or to id and name when
// none are given.
func (v ObjectView) Project(fields []string) ObjectView {
	if len(fields) == 0 {
		return ObjectView{"id": v["id"], "name": v["name"]}
	}
	out := ObjectView{}
	for _, f := range fields {
		if val, ok := v[f]; ok {
			out[f] = val
		}
	}
	return out
}

// Get returns the object identified by a GUID or path.
func (s *Store) Get(ref string) (ObjectView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.cur.resolve(ref)
	if !ok {
		return nil, false
	}
	return s.cur.view(o), true
}

// Query evaluates the small WAQL subset the mock understands:
//
//	$ "<path or id>" [select children|descendants]
//	$ from type <Type>
func (s *Store) Query(waql string) ([]ObjectView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.TrimSpace(waql)
	if !strings.HasPrefix(q, "$") {
		return nil, invalidArgs("unsupported WAQL query: %s", waql)
	}
	q = strings.TrimSpace(q[1:])

	if rest, ok := strings.CutPrefix(q, "from type "); ok {
		typ := strings.TrimSpace(rest)
		var out []ObjectView
		for _, id := range s.cur.sortedIDs() {
			if o := s.cur.objects[id]; strings.EqualFold(o.typ, typ) {
				out = append(out, s.cur.view(o))
			}
		}
		return out, nil
	}

	if !strings.HasPrefix(q, `"`) {
		return nil, invalidArgs("unsupported WAQL query: %s", waql)
	}
	end := strings.Index(q[1:], `"`)
	if end < 0 {
		return nil, invalidArgs("unterminated string in WAQL query: %s", waql)
	}
	ref := q[1 : end+1]
	o, ok := s.cur.resolve(ref)
	if !ok {
		return nil, &Fault{URI: FaultInvalidObject, Message: fmt.Sprintf("object not found: %s", ref)}
	}

	switch tail := strings.TrimSpace(q[end+2:]); tail {
	case "":
		return []ObjectView{s.cur.view(o)}, nil
	case "select children":
		out := make([]ObjectView, 0, len(o.children))
		for _, id := range o.children {
			out = append(out, s.cur.view(s.cur.objects[id]))
		}
		return out, nil
	case "select descendants":
		var out []ObjectView
		var walk func(*object)
		walk = func(p *object) {
			for _, id := range p.children {
				c := s.cur.objects[id]
				out = append(out, s.cur.view(c))
				walk(c)
			}
		}
		walk(o)
		return out, nil
	default:
		return nil, invalidArgs("unsupported WAQL clause: %s", tail)
	}
}

func (t *tree) sortedIDs() []string {
	ids := make([]string, 0, len(t.objects))
	for id := range t.objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// mutate applies fn to the current tree. Outside an undo group a successful
// change becomes one undo step labelled label.
func (s *Store) mutate(label string, fn func(t *tree) error) ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.cur.clone()
	if err := fn(s.cur); err != nil {
		s.cur = before
		return nil, err
	}
	changes := diff(before, s.cur)
	if len(changes) > 0 && s.groupDepth == 0 {
		s.undo = append(s.undo, step{label: label, state: before})
		s.redo = nil
	}
	return changes, nil
}

func (s *Store) target(t *tree, ref string) (*object, error) {
	o, ok := t.resolve(ref)
	if !ok {
		return nil, &Fault{URI: FaultInvalidObject, Message: fmt.Sprintf("object not found: %s", ref)}
	}
	return o, nil
}

func (s *Store) place(t *tree, parent *object, name, onConflict string) (string, bool, error) {
	existing := t.child(parent.id, name)
	if existing == nil {
		return name, false, nil
	}
	switch onConflict {
	case "", "fail":
		return "", false, invalidArgs("Name already exists: %s", name)
	case "rename":
		return t.uniqueName(parent.id, name), false, nil
	case "replace":
		t.remove(existing)
		return name, false, nil
	case "merge":
		return name, true, nil
	default:
		return "", false, invalidArgs("invalid onNameConflict: %s", onConflict)
	}
}

// Create adds an object of typ under parent.
func (s *Store) Create(parent, typ, name, onConflict, notes string, props map[string]any) (ObjectView, []Change, error) {
	if typ == "" || name == "" {
		return nil, nil, invalidArgs("type and name are required")
	}
	var created *object
	changes, err := s.mutate("Create "+typ, func(t *tree) error {
		p, err := s.target(t, parent)
		if err != nil {
			return err
		}
		final, merge, err := s.place(t, p, name, onConflict)
		if err != nil {
			return err
		}
		if merge {
			created = t.child(p.id, name)
		} else {
			created = t.add(p, typ, final)
		}
		if notes != "" {
			created.notes = notes
		}
		for k, v := range props {
			created.props[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.view(s.cur.objects[created.id]), changes, nil
}

// Rename changes an object's name. Siblings must keep unique names.
func (s *Store) Rename(ref, name string) ([]Change, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalidArgs("name must not be empty")
	}
	return s.mutate("Rename", func(t *tree) error {
		o, err := s.target(t, ref)
		if err != nil {
			return err
		}
		if o.parent == "" {
			return invalidArgs("cannot rename %s", t.path(o.id))
		}
		if other := t.child(o.parent, name); other != nil && other.id != o.id {
			return invalidArgs("Name already exists")
		}
		o.name = name
		return nil
	})
}

func (s *Store) Delete(ref string) ([]Change, error) {
	return s.mutate("Delete", func(t *tree) error {
		o, err := s.target(t, ref)
		if err != nil {
			return err
		}
		if p := t.objects[o.parent]; p == nil || p.typ == "Folder" {
			return invalidArgs("cannot delete %s", t.path(o.id))
		}
		t.remove(o)
		return nil
	})
}

func (s *Store) Move(ref, parent, onConflict string) (ObjectView, []Change, error) {
	var moved string
	changes, err := s.mutate("Move", func(t *tree) error {
		o, err := s.target(t, ref)
		if err != nil {
			return err
		}
		p, err := s.target(t, parent)
		if err != nil {
			return err
		}
		if t.isDescendant(p.id, o.id) {
			return invalidArgs("cannot move %s under itself", t.path(o.id))
		}
		if o.parent == p.id {
			moved = o.id
			return nil
		}
		final, merge, err := s.place(t, p, o.name, onConflict)
		if err != nil {
			return err
		}
		if merge {
			return invalidArgs("merge is not supported by move")
		}
		t.detach(o)
		o.parent = p.id
		o.name = final
		p.children = append(p.children, o.id)
		moved = o.id
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.view(s.cur.objects[moved]), changes, nil
}

func (s *Store) Copy(ref, parent, onConflict string) (ObjectView, []Change, error) {
	var copied string
	changes, err := s.mutate("Copy", func(t *tree) error {
		o, err := s.target(t, ref)
		if err != nil {
			return err
		}
		p, err := s.target(t, parent)
		if err != nil {
			return err
		}
		if t.isDescendant(p.id, o.id) {
			return invalidArgs("cannot copy %s under itself", t.path(o.id))
		}
		final, merge, err := s.place(t, p, o.name, onConflict)
		if err != nil {
			return err
		}
		if merge {
			return invalidArgs("merge is not supported by copy")
		}
		copied = t.copyInto(o, p, final).id
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.view(s.cur.objects[copied]), changes, nil
}

func (t *tree) copyInto(src, parent *object, name string) *object {
	dst := t.add(parent, src.typ, name)
	dst.notes = src.notes
	for k, v := range src.props {
		dst.props[k] = v
	}
	for k, v := range src.refs {
		dst.refs[k] = v
	}
	for _, id := range append([]string(nil), src.children...) {
		c := t.objects[id]
		t.copyInto(c, dst, c.name)
	}
	return dst
}

func (s *Store) SetProperty(ref, property string, value any) ([]Change, error) {
	if property == "" {
		return nil, invalidArgs("property is required")
	}
	return s.mutate("Set Property", func(t *tree) error {
		o, err := s.target(t, ref)
		if err != nil {
			return err
		}
		o.props[property] = value
		return nil
	})
}

func (s *Store) SetReference(ref, reference, value string) ([]Change, error) {
	if reference == "" {
		return nil, invalidArgs("reference is required")
	}
	return s.mutate("Set Reference", func(t *tree) error {
		o, err := s.target(t, ref)
		if err != nil {
			return err
		}
		target, err := s.target(t, value)
		if err != nil {
			return err
		}
		o.refs[reference] = target.id
		return nil
	})
}

// Assignments lists the switch assignments of a container.
func (s *Store) Assignments(container string) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, err := s.target(s.cur, container)
	if err != nil {
		return nil, err
	}
	return append([]Assignment{}, s.cur.assignments[o.id]...), nil
}

func (s *Store) Assign(a Assignment) ([]Change, error) {
	return s.mutate("Assign", func(t *tree) error {
		child, err := s.target(t, a.Child)
		if err != nil {
			return err
		}
		sw, err := s.target(t, a.StateOrSwitch)
		if err != nil {
			return err
		}
		container := t.objects[child.parent]
		if container == nil || container.typ != "SwitchContainer" {
			return invalidArgs("%s is not the child of a switch container", t.path(child.id))
		}
		for _, have := range t.assignments[container.id] {
			if have.Child == child.id && have.StateOrSwitch == sw.id {
				return invalidArgs("assignment already exists")
			}
		}
		t.assignments[container.id] = append(t.assignments[container.id], Assignment{Child: child.id, StateOrSwitch: sw.id})
		return nil
	})
}

func (s *Store) Unassign(a Assignment) ([]Change, error) {
	return s.mutate("Unassign", func(t *tree) error {
		child, err := s.target(t, a.Child)
		if err != nil {
			return err
		}
		sw, err := s.target(t, a.StateOrSwitch)
		if err != nil {
			return err
		}
		list := t.assignments[child.parent]
		for i, have := range list {
			if have.Child == child.id && have.StateOrSwitch == sw.id {
				t.assignments[child.parent] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
		return invalidArgs("assignment not found")
	})
}

// BeginGroup opens an undo group. Groups nest; only the outermost one
// produces a history step.
func (s *Store) BeginGroup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupDepth == 0 {
		s.groupStart = s.cur.clone()
	}
	s.groupDepth++
}

// EndGroup closes the current group. When the outermost group changed the
// project it is recorded as one step named label.
func (s *Store) EndGroup(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupDepth == 0 {
		return &Fault{URI: FaultInvalidState, Message: "no undo group is open"}
	}
	s.groupDepth--
	if s.groupDepth > 0 {
		return nil
	}
	start := s.groupStart
	s.groupStart = nil
	if len(diff(start, s.cur)) > 0 {
		s.undo = append(s.undo, step{label: label, state: start})
		s.redo = nil
	}
	return nil
}

// CancelGroup reverts everything recorded since the outermost BeginGroup.
func (s *Store) CancelGroup() ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupDepth == 0 {
		return nil, &Fault{URI: FaultInvalidState, Message: "no undo group is open"}
	}
	changes := diff(s.cur, s.groupStart)
	s.cur = s.groupStart
	s.groupStart = nil
	s.groupDepth = 0
	return changes, nil
}

// Undo reverts the most recent step. It does nothing when the history is empty.
func (s *Store) Undo() ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupDepth > 0 {
		return nil, &Fault{URI: FaultInvalidState, Message: "cannot undo while an undo group is open"}
	}
	if len(s.undo) == 0 {
		return nil, nil
	}
	top := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, step{label: top.label, state: s.cur})
	changes := diff(s.cur, top.state)
	s.cur = top.state
	return changes, nil
}

func (s *Store) Redo() ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupDepth > 0 {
		return nil, &Fault{URI: FaultInvalidState, Message: "cannot redo while an undo group is open"}
	}
	if len(s.redo) == 0 {
		return nil, nil
	}
	top := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, step{label: top.label, state: s.cur})
	changes := diff(s.cur, top.state)
	s.cur = top.state
	return changes, nil
}

// History returns the labels of the undo and redo steps, most recent last.
func (s *Store) History() (undo, redo []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.undo {
		undo = append(undo, st.label)
	}
	for _, st := range s.redo {
		redo = append(redo, st.label)
	}
	return undo, redo
}

// Select replaces the UI selection. Unknown references are rejected.
func (s *Store) Select(refs []string) ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(refs))
	objs := make([]map[string]any, 0, len(refs))
	for _, ref := range refs {
		o, err := s.target(s.cur, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, o.id)
		objs = append(objs, map[string]any{"id": o.id, "name": o.name})
	}
	s.selection = ids
	return []Change{{Topic: topicSelectionChanged, Payload: map[string]any{"objects": objs}}}, nil
}

func (s *Store) Selected() []ObjectView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ObjectView, 0, len(s.selection))
	for _, id := range s.selection {
		if o := s.cur.objects[id]; o != nil {
			out = append(out, s.cur.view(o))
		}
	}
	return out
}
