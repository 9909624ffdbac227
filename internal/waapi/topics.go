package waapi

// Topic URIs published by the authoring server.
const (
	TopicObjectCreated    = "ak.wwise.core.object.created"
	TopicObjectPreDeleted = "ak.wwise.core.object.preDeleted"
	TopicNameChanged      = "ak.wwise.core.object.nameChanged"
	TopicChildAdded       = "ak.wwise.core.object.childAdded"
	TopicChildRemoved     = "ak.wwise.core.object.childRemoved"
	TopicReferenceChanged = "ak.wwise.core.object.referenceChanged"
	TopicPropertyChanged  = "ak.wwise.core.object.propertyChanged"
	TopicSelectionChanged = "ak.wwise.ui.selectionChanged"
)

// ChangeTopics are the notifications that indicate the project was mutated.
// The undo tracker treats any of them as a possible external change.
func ChangeTopics() []string {
	return []string{
		TopicObjectCreated,
		TopicObjectPreDeleted,
		TopicNameChanged,
		TopicChildAdded,
		TopicChildRemoved,
		TopicReferenceChanged,
		TopicPropertyChanged,
	}
}

// WatchedProperties are the properties followed on TopicPropertyChanged by
// default. The server only reports changes to properties named in the
// subscription's "property" option.
func WatchedProperties() []string {
	return []string{
		"Volume",
		"Pitch",
		"Lowpass",
		"Highpass",
		"MakeUpGain",
		"OutputBusVolume",
		"InitialDelay",
		"SwitchAssignments",
	}
}

// PropertyOptions returns the subscription options that select changes to
// property on TopicPropertyChanged.
func PropertyOptions(property string) map[string]any {
	return map[string]any{"property": property}
}

// ObjectEvent is the payload of the object.* topics.
type ObjectEvent struct {
	Object   Ref    `json:"object"`
	Parent   *Ref   `json:"parent,omitempty"`
	Child    *Ref   `json:"child,omitempty"`
	OldName  string `json:"oldName,omitempty"`
	NewName  string `json:"newName,omitempty"`
	Property string `json:"property,omitempty"`
}

// SelectionEvent is the payload of TopicSelectionChanged.
type SelectionEvent struct {
	Objects []Ref `json:"objects"`
}
