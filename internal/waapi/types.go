package waapi

import "encoding/json"

// Object is a Wwise object as returned by object queries. Only the common
// return fields are typed; anything else requested ends up in Extra.
type Object struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Path   string `json:"path,omitempty"`
	Parent *Ref   `json:"parent,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Ref is the short {id, name} form the API uses for linked objects.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (o *Object) UnmarshalJSON(data []byte) error {
	type plain Object
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range []string{"id", "name", "type", "path", "parent"} {
		delete(all, k)
	}
	if len(all) > 0 {
		p.Extra = all
	}
	*o = Object(p)
	return nil
}

// DefaultReturn is the return option used when a helper is given none.
var DefaultReturn = []string{"id", "name", "type", "path"}

// NameConflict values accepted by CreateObject and CopyObject.
const (
	ConflictFail    = "fail"
	ConflictRename  = "rename"
	ConflictReplace = "replace"
	ConflictMerge   = "merge"
)

// CreateArgs describes a new object.
type CreateArgs struct {
	Parent     string `json:"parent"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	OnConflict string `json:"onNameConflict,omitempty"`
	Notes      string `json:"notes,omitempty"`

	// Props are initial property values, keyed without the "@" prefix.
	Props map[string]any `json:"-"`
}

// ProjectInfo is the subset of ak.wwise.core.getProjectInfo the session keeps.
type ProjectInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
	ID   string `json:"id,omitempty"`
}

// Info describes the authoring application and its API.
type Info struct {
	DisplayName string `json:"displayName"`
	Branch      string `json:"branch,omitempty"`
	ProcessID   int    `json:"processId,omitempty"`
	Version     struct {
		DisplayName string `json:"displayName"`
		Year        int    `json:"year"`
		Major       int    `json:"major"`
		Minor       int    `json:"minor"`
		Build       int    `json:"build"`
	} `json:"version"`
	APIVersion int `json:"apiVersion,omitempty"`
}

// SwitchAssignment links a child of a switch container to a switch or state.
type SwitchAssignment struct {
	Child         string `json:"child"`
	StateOrSwitch string `json:"stateOrSwitch"`
}

// TransportState is the playback state of a transport object.
type TransportState string

const (
	TransportPlaying TransportState = "playing"
	TransportStopped TransportState = "stopped"
	TransportPaused  TransportState = "paused"
)

// TransportAction is a playback command for ExecuteTransportAction.
type TransportAction string

const (
	ActionPlay     TransportAction = "play"
	ActionPause    TransportAction = "pause"
	ActionStop     TransportAction = "stop"
	ActionPlayStop TransportAction = "playStop"
)

// Transport is one entry of ak.wwise.core.transport.getList.
type Transport struct {
	Transport  int    `json:"transport"`
	Object     string `json:"object"`
	GameObject int    `json:"gameObject,omitempty"`
}
