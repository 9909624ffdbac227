package mockwaapi

import (
	"reflect"
	"sort"
)

// Topics the router publishes on.
const (
	topicCreated          = "ak.wwise.core.object.created"
	topicPreDeleted       = "ak.wwise.core.object.preDeleted"
	topicNameChanged      = "ak.wwise.core.object.nameChanged"
	topicChildAdded       = "ak.wwise.core.object.childAdded"
	topicChildRemoved     = "ak.wwise.core.object.childRemoved"
	topicPropertyChanged  = "ak.wwise.core.object.propertyChanged"
	topicReferenceChanged = "ak.wwise.core.object.referenceChanged"
	topicSelectionChanged = "ak.wwise.ui.selectionChanged"
)

// Topics lists every topic the router can publish.
func Topics() []string {
	return []string{
		topicCreated,
		topicPreDeleted,
		topicNameChanged,
		topicChildAdded,
		topicChildRemoved,
		topicPropertyChanged,
		topicReferenceChanged,
		topicSelectionChanged,
	}
}

func ref(o *object) map[string]any {
	return map[string]any{"id": o.id, "name": o.name}
}

// diff derives the notifications a change from before to after produces.
// Deletions come first so subscribers see preDeleted before the matching
// childRemoved, then creations and in-place edits, each ordered by GUID.
func diff(before, after *tree) []Change {
	var out []Change

	for _, id := range before.sortedIDs() {
		o := before.objects[id]
		if _, ok := after.objects[id]; ok {
			continue
		}
		out = append(out, Change{Topic: topicPreDeleted, Payload: map[string]any{"object": ref(o)}})
		if p := before.objects[o.parent]; p != nil {
			if _, alive := after.objects[p.id]; alive {
				out = append(out, Change{Topic: topicChildRemoved, Payload: map[string]any{"parent": ref(p), "child": ref(o)}})
			}
		}
	}

	for _, id := range after.sortedIDs() {
		o := after.objects[id]
		old, existed := before.objects[id]
		if !existed {
			out = append(out, Change{Topic: topicCreated, Payload: map[string]any{
				"object": map[string]any{"id": o.id, "name": o.name, "type": o.typ},
			}})
			if p := after.objects[o.parent]; p != nil {
				out = append(out, Change{Topic: topicChildAdded, Payload: map[string]any{"parent": ref(p), "child": ref(o)}})
			}
			continue
		}

		if old.parent != o.parent {
			if p := before.objects[old.parent]; p != nil {
				out = append(out, Change{Topic: topicChildRemoved, Payload: map[string]any{"parent": ref(p), "child": ref(o)}})
			}
			if p := after.objects[o.parent]; p != nil {
				out = append(out, Change{Topic: topicChildAdded, Payload: map[string]any{"parent": ref(p), "child": ref(o)}})
			}
		}
		if old.name != o.name {
			out = append(out, Change{Topic: topicNameChanged, Payload: map[string]any{
				"object": ref(o), "oldName": old.name, "newName": o.name,
			}})
		}
		for _, k := range changedKeys(old.props, o.props) {
			out = append(out, Change{Topic: topicPropertyChanged, Payload: map[string]any{
				"object": ref(o), "property": k, "new": o.props[k], "old": old.props[k],
			}})
		}
		for _, k := range changedKeys(toAny(old.refs), toAny(o.refs)) {
			out = append(out, Change{Topic: topicReferenceChanged, Payload: map[string]any{
				"object": ref(o), "reference": k,
			}})
		}
	}

	if !reflect.DeepEqual(nonEmpty(before.assignments), nonEmpty(after.assignments)) {
		for _, id := range changedAssignments(before, after) {
			if o := after.objects[id]; o != nil {
				out = append(out, Change{Topic: topicPropertyChanged, Payload: map[string]any{
					"object": ref(o), "property": "SwitchAssignments",
				}})
			}
		}
	}
	return out
}

func changedKeys(a, b map[string]any) []string {
	var keys []string
	for k, v := range b {
		if old, ok := a[k]; !ok || !reflect.DeepEqual(old, v) {
			keys = append(keys, k)
		}
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func toAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func nonEmpty(m map[string][]Assignment) map[string][]Assignment {
	out := make(map[string][]Assignment, len(m))
	for k, v := range m {
		if len(v) > 0 {
			out[k] = v
		}
	}
	return out
}

func changedAssignments(before, after *tree) []string {
	seen := map[string]bool{}
	for k := range before.assignments {
		seen[k] = true
	}
	for k := range after.assignments {
		seen[k] = true
	}
	var ids []string
	for k := range seen {
		if !reflect.DeepEqual(nonEmpty(map[string][]Assignment{k: before.assignments[k]}), nonEmpty(map[string][]Assignment{k: after.assignments[k]})) {
			ids = append(ids, k)
		}
	}
	sort.Strings(ids)
	return ids
}
