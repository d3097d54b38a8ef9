// Package primitive defines the structured UI action vocabulary shared by the
// pattern store, matcher, and promotion analyzer. An Action is a tagged
// description of one UI interaction or assertion; it carries only the
// parameters its type needs.
package primitive

import (
	"fmt"
	"strings"
)

// ActionType tags the kind of UI interaction an Action describes.
type ActionType string

const (
	ActionClick         ActionType = "click"
	ActionFill          ActionType = "fill"
	ActionNavigate      ActionType = "navigate"
	ActionSelect        ActionType = "select"
	ActionCheck         ActionType = "check"
	ActionUncheck       ActionType = "uncheck"
	ActionHover         ActionType = "hover"
	ActionPress         ActionType = "press"
	ActionWaitFor       ActionType = "waitFor"
	ActionAssertVisible ActionType = "assertVisible"
	ActionAssertText    ActionType = "assertText"
	ActionAssertURL     ActionType = "assertURL"

	// ActionUnknown is the explicit fallback for unrecognized type tags.
	// Legacy records are never silently dropped; they degrade to this.
	ActionUnknown ActionType = "unknown"
)

// knownTypes is the closed action taxonomy.
var knownTypes = map[ActionType]bool{
	ActionClick:         true,
	ActionFill:          true,
	ActionNavigate:      true,
	ActionSelect:        true,
	ActionCheck:         true,
	ActionUncheck:       true,
	ActionHover:         true,
	ActionPress:         true,
	ActionWaitFor:       true,
	ActionAssertVisible: true,
	ActionAssertText:    true,
	ActionAssertURL:     true,
}

// KnownTypes returns the closed taxonomy in a stable order.
func KnownTypes() []ActionType {
	return []ActionType{
		ActionClick, ActionFill, ActionNavigate, ActionSelect,
		ActionCheck, ActionUncheck, ActionHover, ActionPress,
		ActionWaitFor, ActionAssertVisible, ActionAssertText, ActionAssertURL,
	}
}

// IsKnown reports whether t is part of the closed taxonomy.
func IsKnown(t ActionType) bool {
	return knownTypes[t]
}

// Action is a tagged variant over UI interactions. Selector/Value/URL/Key are
// populated per type; unused fields stay empty and are omitted when persisted.
type Action struct {
	Type      ActionType `json:"type" yaml:"type"`
	Selector  string     `json:"selector,omitempty" yaml:"selector,omitempty"`
	Value     string     `json:"value,omitempty" yaml:"value,omitempty"`
	URL       string     `json:"url,omitempty" yaml:"url,omitempty"`
	Key       string     `json:"key,omitempty" yaml:"key,omitempty"`
	TimeoutMs int        `json:"timeoutMs,omitempty" yaml:"timeout_ms,omitempty"`
}

// SelectorHint records one way of locating a target element, with a
// confidence for how reliable that strategy proved during discovery.
type SelectorHint struct {
	Strategy   string  `json:"strategy" yaml:"strategy"` // testid, role, label, text, css
	Value      string  `json:"value" yaml:"value"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// BestHint returns the highest-confidence hint, or false when hints is empty.
func BestHint(hints []SelectorHint) (SelectorHint, bool) {
	if len(hints) == 0 {
		return SelectorHint{}, false
	}
	best := hints[0]
	for _, h := range hints[1:] {
		if h.Confidence > best.Confidence {
			best = h
		}
	}
	return best, true
}

// FromTypeTag reconstructs a rich Action from a legacy bare type tag plus
// selector hints. It is total: an unrecognized tag yields ActionUnknown with
// the raw tag preserved in Value so nothing is lost on the next save.
func FromTypeTag(tag string, hints []SelectorHint) Action {
	t := ActionType(strings.TrimSpace(tag))
	if !IsKnown(t) {
		return Action{Type: ActionUnknown, Value: tag}
	}

	action := Action{Type: t}
	if hint, ok := BestHint(hints); ok {
		switch t {
		case ActionNavigate, ActionAssertURL:
			action.URL = hint.Value
		case ActionPress:
			action.Key = hint.Value
		default:
			action.Selector = hintToSelector(hint)
		}
	}
	return action
}

// hintToSelector renders a selector hint in locator syntax.
func hintToSelector(h SelectorHint) string {
	switch h.Strategy {
	case "testid":
		return fmt.Sprintf("[data-testid=%q]", h.Value)
	case "role":
		return fmt.Sprintf("role=%s", h.Value)
	case "label":
		return fmt.Sprintf("label=%s", h.Value)
	case "text":
		return fmt.Sprintf("text=%s", h.Value)
	default:
		return h.Value
	}
}

// Describe renders a short human-readable description of the action,
// used in session journals and promotion reports.
func (a Action) Describe() string {
	switch a.Type {
	case ActionClick:
		return fmt.Sprintf("click %s", a.Selector)
	case ActionFill:
		return fmt.Sprintf("fill %s with %q", a.Selector, a.Value)
	case ActionNavigate:
		return fmt.Sprintf("navigate to %s", a.URL)
	case ActionSelect:
		return fmt.Sprintf("select %q in %s", a.Value, a.Selector)
	case ActionCheck:
		return fmt.Sprintf("check %s", a.Selector)
	case ActionUncheck:
		return fmt.Sprintf("uncheck %s", a.Selector)
	case ActionHover:
		return fmt.Sprintf("hover %s", a.Selector)
	case ActionPress:
		return fmt.Sprintf("press %s", a.Key)
	case ActionWaitFor:
		return fmt.Sprintf("wait for %s", a.Selector)
	case ActionAssertVisible:
		return fmt.Sprintf("assert %s is visible", a.Selector)
	case ActionAssertText:
		return fmt.Sprintf("assert %s has text %q", a.Selector, a.Value)
	case ActionAssertURL:
		return fmt.Sprintf("assert URL is %s", a.URL)
	default:
		return fmt.Sprintf("unknown action (tag=%q)", a.Value)
	}
}
