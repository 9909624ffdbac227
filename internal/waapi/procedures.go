package waapi

import (
	"context"
	"encoding/json"
)

// Procedure URIs used by the typed helpers.
const (
	ProcGetSelectedObjects = "ak.wwise.ui.getSelectedObjects"
	ProcExecuteCommand     = "ak.wwise.ui.commands.execute"

	ProcGetObjects   = "ak.wwise.core.object.get"
	ProcCreateObject = "ak.wwise.core.object.create"
	ProcMoveObject   = "ak.wwise.core.object.move"
	ProcCopyObject   = "ak.wwise.core.object.copy"
	ProcSetName      = "ak.wwise.core.object.setName"
	ProcDeleteObject = "ak.wwise.core.object.delete"
	ProcSetProperty  = "ak.wwise.core.object.setProperty"
	ProcSetReference = "ak.wwise.core.object.setReference"

	ProcGetAssignments   = "ak.wwise.core.switchContainer.getAssignments"
	ProcAddAssignment    = "ak.wwise.core.switchContainer.addAssignment"
	ProcRemoveAssignment = "ak.wwise.core.switchContainer.removeAssignment"

	ProcBeginUndoGroup  = "ak.wwise.core.undo.beginGroup"
	ProcEndUndoGroup    = "ak.wwise.core.undo.endGroup"
	ProcCancelUndoGroup = "ak.wwise.core.undo.cancelGroup"

	ProcGetFunctions   = "ak.wwise.waapi.getFunctions"
	ProcGetTopics      = "ak.wwise.waapi.getTopics"
	ProcGetInfo        = "ak.wwise.core.getInfo"
	ProcGetProjectInfo = "ak.wwise.core.getProjectInfo"

	ProcCreateTransport   = "ak.wwise.core.transport.create"
	ProcExecuteTransport  = "ak.wwise.core.transport.executeAction"
	ProcDestroyTransport  = "ak.wwise.core.transport.destroy"
	ProcGetTransportState = "ak.wwise.core.transport.getState"
	ProcListTransports    = "ak.wwise.core.transport.getList"
)

// Native commands for ProcExecuteCommand.
const (
	CommandUndo = "Undo"
	CommandRedo = "Redo"
)

func returnOptions(fields []string) map[string]any {
	if len(fields) == 0 {
		fields = DefaultReturn
	}
	return map[string]any{"return": fields}
}

type objectList struct {
	Objects []Object `json:"objects"`
}

type returnList struct {
	Return []Object `json:"return"`
}

// GetSelectedObjects returns the objects selected in the authoring UI.
func (c *Client) GetSelectedObjects(ctx context.Context, fields ...string) ([]Object, error) {
	var out objectList
	if err := c.callInto(ctx, ProcGetSelectedObjects, nil, returnOptions(fields), &out); err != nil {
		return nil, err
	}
	return out.Objects, nil
}

// GetObjects runs a WAQL query.
func (c *Client) GetObjects(ctx context.Context, waql string, fields ...string) ([]Object, error) {
	var out returnList
	args := map[string]any{"waql": waql}
	if err := c.callInto(ctx, ProcGetObjects, args, returnOptions(fields), &out); err != nil {
		return nil, err
	}
	return out.Return, nil
}

// CreateObject creates a child of a.Parent and returns the new object.
func (c *Client) CreateObject(ctx context.Context, a CreateArgs) (Object, error) {
	args := map[string]any{
		"parent": a.Parent,
		"type":   a.Type,
		"name":   a.Name,
	}
	if a.OnConflict != "" {
		args["onNameConflict"] = a.OnConflict
	}
	if a.Notes != "" {
		args["notes"] = a.Notes
	}
	for k, v := range a.Props {
		args["@"+k] = v
	}
	var out Object
	err := c.callInto(ctx, ProcCreateObject, args, nil, &out)
	return out, err
}

// MoveObject moves object under parent.
func (c *Client) MoveObject(ctx context.Context, object, parent, onConflict string) (Object, error) {
	args := map[string]any{"object": object, "parent": parent}
	if onConflict != "" {
		args["onNameConflict"] = onConflict
	}
	var out Object
	err := c.callInto(ctx, ProcMoveObject, args, nil, &out)
	return out, err
}

// CopyObject copies object under parent and returns the copy.
func (c *Client) CopyObject(ctx context.Context, object, parent, onConflict string) (Object, error) {
	args := map[string]any{"object": object, "parent": parent}
	if onConflict != "" {
		args["onNameConflict"] = onConflict
	}
	var out Object
	err := c.callInto(ctx, ProcCopyObject, args, nil, &out)
	return out, err
}

func (c *Client) RenameObject(ctx context.Context, object, name string) error {
	_, err := c.Call(ctx, ProcSetName, map[string]any{"object": object, "value": name}, nil)
	return err
}

func (c *Client) DeleteObject(ctx context.Context, object string) error {
	_, err := c.Call(ctx, ProcDeleteObject, map[string]any{"object": object}, nil)
	return err
}

// SetProperty sets a property, optionally for one platform only.
func (c *Client) SetProperty(ctx context.Context, object, property string, value any, platform string) error {
	args := map[string]any{"object": object, "property": property, "value": value}
	if platform != "" {
		args["platform"] = platform
	}
	_, err := c.Call(ctx, ProcSetProperty, args, nil)
	return err
}

// SetReference points a reference (OutputBus, Attenuation, ...) at value.
func (c *Client) SetReference(ctx context.Context, object, reference, value string) error {
	args := map[string]any{"object": object, "reference": reference, "value": value}
	_, err := c.Call(ctx, ProcSetReference, args, nil)
	return err
}

// GetSwitchAssignments lists the child to switch assignments of a switch container.
func (c *Client) GetSwitchAssignments(ctx context.Context, container string) ([]SwitchAssignment, error) {
	var out struct {
		Return []SwitchAssignment `json:"return"`
	}
	if err := c.callInto(ctx, ProcGetAssignments, map[string]any{"id": container}, nil, &out); err != nil {
		return nil, err
	}
	return out.Return, nil
}

func (c *Client) AddSwitchAssignment(ctx context.Context, a SwitchAssignment) error {
	_, err := c.Call(ctx, ProcAddAssignment, a, nil)
	return err
}

func (c *Client) RemoveSwitchAssignment(ctx context.Context, a SwitchAssignment) error {
	_, err := c.Call(ctx, ProcRemoveAssignment, a, nil)
	return err
}

// BeginUndoGroup opens an undo group on the server. Every mutation until the
// matching EndUndoGroup becomes one undoable step.
func (c *Client) BeginUndoGroup(ctx context.Context) error {
	_, err := c.Call(ctx, ProcBeginUndoGroup, nil, nil)
	return err
}

// EndUndoGroup closes the open group and labels it in the server's history.
func (c *Client) EndUndoGroup(ctx context.Context, label string) error {
	_, err := c.Call(ctx, ProcEndUndoGroup, map[string]any{"displayName": label}, nil)
	return err
}

// CancelUndoGroup discards the open group, reverting what it recorded.
func (c *Client) CancelUndoGroup(ctx context.Context) error {
	_, err := c.Call(ctx, ProcCancelUndoGroup, nil, nil)
	return err
}

// ExecuteCommand runs a native UI command such as CommandUndo.
func (c *Client) ExecuteCommand(ctx context.Context, command string, objects ...string) error {
	args := map[string]any{"command": command}
	if len(objects) > 0 {
		args["objects"] = objects
	}
	_, err := c.Call(ctx, ProcExecuteCommand, args, nil)
	return err
}

func (c *Client) Undo(ctx context.Context) error { return c.ExecuteCommand(ctx, CommandUndo) }

func (c *Client) Redo(ctx context.Context) error { return c.ExecuteCommand(ctx, CommandRedo) }

// GetFunctions lists the procedure URIs the server exposes.
func (c *Client) GetFunctions(ctx context.Context) ([]string, error) {
	var out struct {
		Functions []string `json:"functions"`
	}
	if err := c.callInto(ctx, ProcGetFunctions, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Functions, nil
}

// GetTopics lists the topic URIs the server publishes.
func (c *Client) GetTopics(ctx context.Context) ([]string, error) {
	var out struct {
		Topics []string `json:"topics"`
	}
	if err := c.callInto(ctx, ProcGetTopics, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Topics, nil
}

func (c *Client) GetInfo(ctx context.Context) (Info, error) {
	var out Info
	err := c.callInto(ctx, ProcGetInfo, nil, nil, &out)
	return out, err
}

func (c *Client) GetProjectInfo(ctx context.Context) (ProjectInfo, error) {
	var out ProjectInfo
	err := c.callInto(ctx, ProcGetProjectInfo, nil, nil, &out)
	return out, err
}

// CreateTransport creates a playback transport for object and returns its id.
func (c *Client) CreateTransport(ctx context.Context, object string) (int, error) {
	var out struct {
		Transport int `json:"transport"`
	}
	if err := c.callInto(ctx, ProcCreateTransport, map[string]any{"object": object}, nil, &out); err != nil {
		return 0, err
	}
	return out.Transport, nil
}

func (c *Client) ExecuteTransportAction(ctx context.Context, transport int, action TransportAction) error {
	args := map[string]any{"transport": transport, "action": string(action)}
	_, err := c.Call(ctx, ProcExecuteTransport, args, nil)
	return err
}

func (c *Client) DestroyTransport(ctx context.Context, transport int) error {
	_, err := c.Call(ctx, ProcDestroyTransport, map[string]any{"transport": transport}, nil)
	return err
}

func (c *Client) GetTransportState(ctx context.Context, transport int) (TransportState, error) {
	var out struct {
		State TransportState `json:"state"`
	}
	if err := c.callInto(ctx, ProcGetTransportState, map[string]any{"transport": transport}, nil, &out); err != nil {
		return "", err
	}
	return out.State, nil
}

func (c *Client) ListTransports(ctx context.Context) ([]Transport, error) {
	var out struct {
		List []Transport `json:"list"`
	}
	if err := c.callInto(ctx, ProcListTransports, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.List, nil
}

// RawCall is Call with a JSON-encoded payload, for tools that forward
// arbitrary procedures.
func (c *Client) RawCall(ctx context.Context, uri string, kwargs, options json.RawMessage) (json.RawMessage, error) {
	var opts map[string]any
	if len(options) > 0 {
		if err := json.Unmarshal(options, &opts); err != nil {
			return nil, &CallError{URI: uri, Message: "invalid options: " + err.Error(), Err: err}
		}
	}
	var args any
	if len(kwargs) > 0 {
		args = kwargs
	}
	return c.Call(ctx, uri, args, opts)
}
