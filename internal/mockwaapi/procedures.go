package mockwaapi

import (
	"sort"
	"strings"
	"sync"
)

type transportState struct {
	object string
	state  string
}

type transports struct {
	mu   sync.Mutex
	next int
	byID map[int]*transportState
}

func (s *Server) registerDefaults() {
	for uri, p := range map[string]Procedure{
		"ak.wwise.core.getInfo":        s.getInfo,
		"ak.wwise.core.getProjectInfo": s.getProjectInfo,
		"ak.wwise.waapi.getFunctions":  s.getFunctions,
		"ak.wwise.waapi.getTopics":     s.getTopics,

		"ak.wwise.ui.getSelectedObjects": s.getSelectedObjects,
		"ak.wwise.ui.commands.execute":   s.executeCommand,

		"ak.wwise.core.object.get":          s.getObjects,
		"ak.wwise.core.object.create":       s.createObject,
		"ak.wwise.core.object.setName":      s.setName,
		"ak.wwise.core.object.delete":       s.deleteObject,
		"ak.wwise.core.object.move":         s.moveObject,
		"ak.wwise.core.object.copy":         s.copyObject,
		"ak.wwise.core.object.setProperty":  s.setProperty,
		"ak.wwise.core.object.setReference": s.setReference,

		"ak.wwise.core.switchContainer.getAssignments":   s.getAssignments,
		"ak.wwise.core.switchContainer.addAssignment":    s.addAssignment,
		"ak.wwise.core.switchContainer.removeAssignment": s.removeAssignment,

		"ak.wwise.core.undo.beginGroup":  s.beginGroup,
		"ak.wwise.core.undo.endGroup":    s.endGroup,
		"ak.wwise.core.undo.cancelGroup": s.cancelGroup,

		"ak.wwise.core.transport.create":        s.createTransport,
		"ak.wwise.core.transport.executeAction": s.executeTransportAction,
		"ak.wwise.core.transport.destroy":       s.destroyTransport,
		"ak.wwise.core.transport.getState":      s.getTransportState,
		"ak.wwise.core.transport.getList":       s.listTransports,
	} {
		s.procs[uri] = p
	}
}

func (s *Server) getInfo(Invocation) (any, error) {
	return map[string]any{
		"displayName": "Wwise (mock)",
		"branch":      "mock",
		"apiVersion":  5,
		"version": map[string]any{
			"displayName": "v2023.1.0 Build 8367",
			"year":        2023,
			"major":       1,
			"minor":       0,
			"build":       8367,
		},
	}, nil
}

func (s *Server) getProjectInfo(Invocation) (any, error) {
	return s.opts.Project, nil
}

func (s *Server) getFunctions(Invocation) (any, error) {
	return map[string]any{"functions": s.procedures()}, nil
}

func (s *Server) getTopics(Invocation) (any, error) {
	return map[string]any{"topics": Topics()}, nil
}

func projectAll(views []ObjectView, fields []string) []ObjectView {
	out := make([]ObjectView, 0, len(views))
	for _, v := range views {
		out = append(out, v.Project(fields))
	}
	return out
}

func (s *Server) getSelectedObjects(inv Invocation) (any, error) {
	return map[string]any{"objects": projectAll(s.store.Selected(), inv.ReturnFields())}, nil
}

// executeCommand supports the commands that affect the mock: Undo, Redo and
// a selection command taking an objects list.
func (s *Server) executeCommand(inv Invocation) (any, error) {
	var args struct {
		Command string   `json:"command"`
		Objects []string `json:"objects"`
	}
	if err := inv.Bind(&args); err != nil {
		return nil, err
	}

	var changes []Change
	var err error
	switch args.Command {
	case "Undo":
		changes, err = s.store.Undo()
	case "Redo":
		changes, err = s.store.Redo()
	case "FindInProjectExplorerSyncGroup1", "FindInProjectExplorerSelectionChannel1":
		changes, err = s.store.Select(args.Objects)
	case "":
		return nil, invalidArgs("command is required")
	default:
		return nil, invalidArgs("unknown command: %s", args.Command)
	}
	if err != nil {
		return nil, err
	}
	s.broker.publishAll(changes)
	return nil, nil
}

func (s *Server) getObjects(inv Invocation) (any, error) {
	var args struct {
		WAQL string   `json:"waql"`
		From struct {
			ID   []string `json:"id"`
			Path []string `json:"path"`
		} `json:"from"`
	}
	if err := inv.Bind(&args); err != nil {
		return nil, err
	}

	var views []ObjectView
	switch {
	case args.WAQL != "":
		v, err := s.store.Query(args.WAQL)
		if err != nil {
			return nil, err
		}
		views = v
	case len(args.From.ID) > 0 || len(args.From.Path) > 0:
		for _, ref := range append(args.From.ID, args.From.Path...) {
			if v, ok := s.store.Get(ref); ok {
				views = append(views, v)
			}
		}
	default:
		return nil, invalidArgs("waql or from is required")
	}
	return map[string]any{"return": projectAll(views, inv.ReturnFields())}, nil
}

func (s *Server) createObject(inv Invocation) (any, error) {
	var raw map[string]any
	if err := inv.Bind(&raw); err != nil {
		return nil, err
	}
	str := func(k string) string {
		v, _ := raw[k].(string)
		return v
	}
	props := map[string]any{}
	for k, v := range raw {
		if name, ok := strings.CutPrefix(k, "@"); ok {
			props[name] = v
		}
	}
	view, changes, err := s.store.Create(str("parent"), str("type"), str("name"), str("onNameConflict"), str("notes"), props)
	if err != nil {
		return nil, err
	}
	s.broker.publishAll(changes)
	return view.Project([]string{"id", "name"}), nil
}

func (s *Server) setName(inv Invocation) (any, error) {
	var args struct {
		Object string `json:"object"`
		Value  string `json:"value"`
	}
	if err := inv.Bind(&args); err != nil {
		return nil, err
	}
	changes, err := s.store.Rename(args.Object, args.Value)
	if err != nil {
		return nil, err
	}
	s.broker.publishAll(changes)
	return nil, nil
}

func (s *Server) deleteObject(inv Invocation) (any, error) {
	var args struct {
		Object string `json:"object"`
	}
	if err := inv.Bind(&args); err != nil {
		return nil, err
	}
	changes, err := s.store.Delete(args.Object)
	if err != nil {
		return nil, err
	}
	s.broker.publishAll(changes)
	return nil, nil
}

type relocateArgs struct {
	Object     string `json:"object"`
	Parent     string `json:"parent"`
	OnConflict string `json:"onNameConflict"`
}

func (s *Server) moveObject(inv Invocation) (any, error) {
	var args relocateArgs
	if err := inv.Bind(&args); err != nil {
		return nil, err
	}
	view, changes, err := s.store.Move(args.Object, args.Parent, args.OnConflict)
	if err != nil {
		return nil, err
	}
	s.broker.publishAll(changes)
	return view.Project([]string{"id", "name"}), nil
}

func (s *Server) copyObject(inv Invocation) (any, error) {
	var args relocateArgs
	if err := inv.Bind(&args); err != nil {
		return nil, err
	}
	view, changes, err := s.store.Copy(args.Object, args.Parent, args.OnConflict)
	if err != nil {
		return nil, err
	}
	s.broker.publishAll(changes)
	return view.Project([]string{"id", "name"}), nil
}

func (s *Server) setProperty(inv Invocation) (any, error) {
	var args struct {
		Object   string `json:"object"`
		Property string `json:"property"`
		Value    any    `json:"value"`
	}
	if err := inv.Bind(&args); err != nil {
		return nil, err
	}
	changes, err := s.store.SetProperty(args.Object, args.Property, args.Value)
	if err != nil {
		return nil, err
	}
	s.broker.publishAll(changes)
	return nil, nil
}

func (s *Server) setReference(inv Invocation) (any, error) {
	var args struct {
		Object    string `json:"object"`
		Reference string `json:"reference"`
		Value     string `json:"value"`
	}
	if err := inv.Bind(&args); err != nil {
		return nil, err
	}
	changes, err := s.store.SetReference(args.Object, args.Reference, args.Value)
	if err != nil {
		return nil, err
	}
	s.broker.publishAll(changes)
	return nil, nil
}

func (s *Server) getAssignments(inv Invocation) (any, error) {
	var args struct {
		ID string `json:"id"`
	}
	if err := inv.Bind(&args); err != nil {
		return nil, err
	}
	list, err := s.store.Assignments(args.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"return": list}, nil
}

func (s *Server) addAssignment(inv Invocation) (any, error) {
	var a Assignment
	if err := inv.Bind(&a); err != nil {
		return nil, err
	}
	changes, err := s.store.Assign(a)
	if err != nil {
		return nil, err
	}
	s.broker.publishAll(changes)
	return nil, nil
}

func (s *Server) removeAssignment(inv Invocation) (any, error) {
	var a Assignment
	if err := inv.Bind(&a); err != nil {
		return nil, err
	}
	changes, err := s.store.Unassign(a)
	if err != nil {
		return nil, err
	}
	s.broker.publishAll(changes)
	return nil, nil
}

func (s *Server) beginGroup(Invocation) (any, error) {
	s.store.BeginGroup()
	return nil, nil
}

func (s *Server) endGroup(inv Invocation) (any, error) {
	var args struct {
		DisplayName string `json:"displayName"`
	}
	if err := inv.Bind(&args); err != nil {
		return nil, err
	}
	if args.DisplayName == "" {
		return nil, invalidArgs("displayName is required")
	}
	return nil, s.store.EndGroup(args.DisplayName)
}

func (s *Server) cancelGroup(Invocation) (any, error) {
	changes, err := s.store.CancelGroup()
	if err != nil {
		return nil, err
	}
	s.broker.publishAll(changes)
	return nil, nil
}

func (s *Server) createTransport(inv Invocation) (any, error) {
	var args struct {
		Object string `json:"object"`
	}
	if err := inv.Bind(&args); err != nil {
		return nil, err
	}
	v, ok := s.store.Get(args.Object)
	if !ok {
		return nil, &Fault{URI: FaultInvalidObject, Message: "object not found: " + args.Object}
	}

	t := &s.transport
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.byID[t.next] = &transportState{object: v["id"].(string), state: "stopped"}
	return map[string]any{"transport": t.next}, nil
}

func (s *Server) lookupTransport(inv Invocation) (*transportState, int, error) {
	var args struct {
		Transport int `json:"transport"`
	}
	if err := inv.Bind(&args); err != nil {
		return nil, 0, err
	}
	ts, ok := s.transport.byID[args.Transport]
	if !ok {
		return nil, 0, invalidArgs("unknown transport: %d", args.Transport)
	}
	return ts, args.Transport, nil
}

func (s *Server) executeTransportAction(inv Invocation) (any, error) {
	var args struct {
		Action string `json:"action"`
	}
	if err := inv.Bind(&args); err != nil {
		return nil, err
	}
	s.transport.mu.Lock()
	defer s.transport.mu.Unlock()
	ts, _, err := s.lookupTransport(inv)
	if err != nil {
		return nil, err
	}
	switch args.Action {
	case "play":
		ts.state = "playing"
	case "pause":
		ts.state = "paused"
	case "stop":
		ts.state = "stopped"
	case "playStop":
		if ts.state == "playing" {
			ts.state = "stopped"
		} else {
			ts.state = "playing"
		}
	default:
		return nil, invalidArgs("unknown action: %s", args.Action)
	}
	return nil, nil
}

func (s *Server) destroyTransport(inv Invocation) (any, error) {
	s.transport.mu.Lock()
	defer s.transport.mu.Unlock()
	_, id, err := s.lookupTransport(inv)
	if err != nil {
		return nil, err
	}
	delete(s.transport.byID, id)
	return nil, nil
}

func (s *Server) getTransportState(inv Invocation) (any, error) {
	s.transport.mu.Lock()
	defer s.transport.mu.Unlock()
	ts, _, err := s.lookupTransport(inv)
	if err != nil {
		return nil, err
	}
	return map[string]any{"state": ts.state}, nil
}

func (s *Server) listTransports(Invocation) (any, error) {
	s.transport.mu.Lock()
	defer s.transport.mu.Unlock()
	ids := make([]int, 0, len(s.transport.byID))
	for id := range s.transport.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	list := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		list = append(list, map[string]any{"transport": id, "object": s.transport.byID[id].object})
	}
	return map[string]any{"list": list}, nil
}
