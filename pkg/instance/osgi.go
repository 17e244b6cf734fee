package instance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ryanuber/go-glob"
)

// Raw OSGi bundle states as reported by the Felix web console.
const (
	BundleUninstalled = 1
	BundleInstalled   = 2
	BundleResolved    = 4
	BundleStarting    = 8
	BundleStopping    = 16
	BundleActive      = 32
)

// Raw declarative services component states.
const (
	ComponentDisabledOrNoConfig = -1
	ComponentUnsatisfied        = 2
	ComponentSatisfied          = 4
	ComponentActive             = 8
	ComponentFailedActivation   = 16
)

// Bundle is a single OSGi bundle.
type Bundle struct {
	ID           json.Number `json:"id"`
	Name         string      `json:"name"`
	SymbolicName string      `json:"symbolicName"`
	Version      string      `json:"version"`
	StateRaw     int         `json:"stateRaw"`
	Fragment     bool        `json:"fragment"`
}

// Stable reports whether the bundle reached its final lifecycle state.
// Fragments never start so they are stable once resolved.
func (b Bundle) Stable() bool {
	if b.Fragment {
		return b.StateRaw == BundleResolved
	}
	return b.StateRaw == BundleActive
}

// State returns the lifecycle state name.
func (b Bundle) State() string {
	switch b.StateRaw {
	case BundleUninstalled:
		return "uninstalled"
	case BundleInstalled:
		return "installed"
	case BundleResolved:
		return "resolved"
	case BundleStarting:
		return "starting"
	case BundleStopping:
		return "stopping"
	case BundleActive:
		return "active"
	default:
		return "unknown"
	}
}

func (b Bundle) String() string {
	return fmt.Sprintf("Bundle(symbolicName='%s', state='%s', id='%s')", b.SymbolicName, b.State(), b.ID)
}

// BundleState is the bundle listing of the web console.
// Stats holds total, active bundles, active fragments, resolved and installed counts.
type BundleState struct {
	Status  string   `json:"status"`
	Stats   []int    `json:"s"`
	Bundles []Bundle `json:"data"`
}

// Unknown reports whether the listing carried no bundles at all.
func (s *BundleState) Unknown() bool {
	return s == nil || len(s.Bundles) == 0
}

func (s *BundleState) stat(i int) int {
	if s == nil || len(s.Stats) <= i {
		return 0
	}
	return s.Stats[i]
}

// Total returns the number of bundles.
func (s *BundleState) Total() int {
	if n := s.stat(0); n > 0 {
		return n
	}
	if s == nil {
		return 0
	}
	return len(s.Bundles)
}

func (s *BundleState) ActiveBundles() int   { return s.stat(1) }
func (s *BundleState) ActiveFragments() int { return s.stat(2) }
func (s *BundleState) ResolvedBundles() int { return s.stat(3) }
func (s *BundleState) InstalledBundles() int {
	return s.stat(4)
}

// Stable reports whether every bundle is stable.
func (s *BundleState) Stable() bool {
	if s.Unknown() {
		return false
	}
	for _, b := range s.Bundles {
		if !b.Stable() {
			return false
		}
	}
	return true
}

// StableCount returns the number of bundles neither resolved nor installed.
func (s *BundleState) StableCount() int {
	return s.Total() - (s.ResolvedBundles() + s.InstalledBundles())
}

// StatsWithLabels renders stats compactly, e.g. "560t|550ba|8fa|2br".
func (s *BundleState) StatsWithLabels() string {
	return fmt.Sprintf("%dt|%dba|%dfa|%dbr", s.Total(), s.ActiveBundles(), s.ActiveFragments(), s.ResolvedBundles())
}

// BundlesExcept returns bundles whose symbolic names match none of the patterns.
func (s *BundleState) BundlesExcept(patterns []string) []Bundle {
	if s == nil {
		return nil
	}
	var result []Bundle
	for _, b := range s.Bundles {
		if !Wildcard(b.SymbolicName, patterns) {
			result = append(result, b)
		}
	}
	return result
}

// Component is a declarative services component.
type Component struct {
	ID       json.Number `json:"id"`
	Name     string      `json:"name"`
	State    string      `json:"state"`
	StateRaw int         `json:"stateRaw"`
	PID      string      `json:"pid"`
	BundleID json.Number `json:"bundleId"`
}

// UID identifies the component by PID, falling back to its name.
func (c Component) UID() string {
	if c.PID != "" {
		return c.PID
	}
	return c.Name
}

func (c Component) Active() bool           { return c.StateRaw == ComponentActive }
func (c Component) Satisfied() bool        { return c.StateRaw == ComponentSatisfied }
func (c Component) Unsatisfied() bool      { return c.StateRaw == ComponentUnsatisfied }
func (c Component) FailedActivation() bool { return c.StateRaw == ComponentFailedActivation }

func (c Component) String() string {
	return fmt.Sprintf("Component(uid='%s', state='%s', id='%s', bundleId='%s')", c.UID(), c.State, c.ID, c.BundleID)
}

// ComponentState is the component listing of the web console.
type ComponentState struct {
	Total      int         `json:"status"`
	Components []Component `json:"data"`
}

// Unknown reports whether the listing carried no components.
func (s *ComponentState) Unknown() bool {
	return s == nil || len(s.Components) == 0
}

// Find returns components whose UID matches include and none of exclude.
func (s *ComponentState) Find(include, exclude []string) []Component {
	if s == nil {
		return nil
	}
	var result []Component
	for _, c := range s.Components {
		if Wildcard(c.UID(), include) && !Wildcard(c.UID(), exclude) {
			result = append(result, c)
		}
	}
	return result
}

// Size returns the number of listed components.
func (s *ComponentState) Size() int {
	if s == nil {
		return 0
	}
	if len(s.Components) > s.Total {
		return len(s.Components)
	}
	return s.Total
}

// Millis is a unix millisecond timestamp that decodes from a JSON number or string.
type Millis int64

func (m *Millis) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*m = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid millis %q: %w", raw, err)
	}
	*m = Millis(v)
	return nil
}

// Time converts the timestamp using the given zone.
func (m Millis) Time(zone *time.Location) time.Time {
	t := time.UnixMilli(int64(m))
	if zone != nil {
		t = t.In(zone)
	}
	return t
}

// Event is a single OSGi framework, bundle or service event.
type Event struct {
	ID       string `json:"id"`
	Topic    string `json:"topic"`
	Received Millis `json:"received"`
	Category string `json:"category"`
	Info     string `json:"info"`
}

// Service extracts the service object class from service event info.
func (e Event) Service() string {
	_, rest, ok := strings.Cut(e.Info, ", objectClass=")
	if !ok {
		return ""
	}
	service, _, ok := strings.Cut(rest, ", bundle=")
	if !ok {
		return ""
	}
	return service
}

// Details describes the event by service, info or topic, whichever is known first.
func (e Event) Details() string {
	if s := strings.TrimSpace(e.Service()); s != "" {
		return s
	}
	if s := strings.TrimSpace(e.Info); s != "" {
		return s
	}
	return e.Topic
}

func (e Event) String() string {
	return fmt.Sprintf("Event(details='%s', received='%d', id='%s')", e.Details(), e.Received, e.ID)
}

// EventState is the recent event log of the web console.
type EventState struct {
	Status string  `json:"status"`
	Events []Event `json:"data"`
}

// Unknown reports whether no event log was obtained.
func (s *EventState) Unknown() bool {
	return s == nil || len(s.Events) == 0
}

// Matching returns events with a topic matching topics that were received
// no earlier than maxAge before now, except those whose details match ignored.
func (s *EventState) Matching(topics []string, maxAge time.Duration, ignored []string, now time.Time) []Event {
	if s == nil {
		return nil
	}
	var result []Event
	for _, e := range s.Events {
		if !Wildcard(e.Topic, topics) {
			continue
		}
		if now.Sub(time.UnixMilli(int64(e.Received))) > maxAge {
			continue
		}
		if Wildcard(e.Details(), ignored) {
			continue
		}
		result = append(result, e)
	}
	return result
}

// InstallerState is the Sling OSGi installer MBean.
type InstallerState struct {
	Active                 bool  `json:"Active"`
	SuspendedSince         int64 `json:"SuspendedSince"`
	ActiveResourceCount    int64 `json:"ActiveResourceCount"`
	InstalledResourceCount int64 `json:"InstalledResourceCount"`

	// Paused is resolved separately from the pause installation node.
	Paused bool `json:"-"`
}

// Busy reports whether the installer is processing resources.
func (s *InstallerState) Busy() bool {
	return s != nil && (s.Active || s.ActiveResourceCount > 0)
}

// Unknown reports whether the installer state could not be determined.
func (s *InstallerState) Unknown() bool {
	return s == nil || s.InstalledResourceCount < 0
}

// ControlPort describes the control port marker of a local instance.
type ControlPort struct {
	Exists  bool
	ModTime time.Time
}

// Wildcard reports whether value matches any of the glob patterns.
func Wildcard(value string, patterns []string) bool {
	for _, p := range patterns {
		if glob.Glob(p, value) {
			return true
		}
	}
	return false
}
