package models

// NavigationEvent is a single raw navigation-history entry mirrored from the
// browser. Ephemeral from the engine's point of view: read once per report.
type NavigationEvent struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	VisitedAtMs int64  `json:"visited_at"`
}

// TabEventType identifies a tab/window focus transition observed by the
// browser extension.
type TabEventType string

const (
	// TabActivated fires when the user switches to a tab.
	TabActivated TabEventType = "activated"
	// TabNavigated fires when the tracked tab completes a navigation.
	TabNavigated TabEventType = "navigated"
	// WindowBlurred fires when the browser loses all focus.
	WindowBlurred TabEventType = "blurred"
	// WindowFocused fires when the browser regains focus on a tab.
	WindowFocused TabEventType = "focused"
	// TabClosed fires when a tab is removed.
	TabClosed TabEventType = "closed"
)

// TabEvent is one focus transition forwarded by the extension. URL may be
// empty when the extension could not resolve the tab (e.g. it closed while
// being queried); the tracker degrades to idle in that case.
type TabEvent struct {
	Type  TabEventType `json:"type"`
	TabID int          `json:"tab_id"`
	URL   string       `json:"url"`
}
