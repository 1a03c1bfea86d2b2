package tracker

import (
	"context"
	"regexp"
	"sync"
	"time"
)

var contentPattern = regexp.MustCompile(`^/event/([^/?#]+)`)

// ContentID extracts the event id from an app path, or "".
func ContentID(fullPath string) string {
	m := contentPattern.FindStringSubmatch(fullPath)
	if m == nil {
		return ""
	}
	return m[1]
}

// Tab tracks one open tab: its current page view, the previous path and the
// heartbeat. Operations on a Tab run one at a time.
type Tab struct {
	tracker   *Tracker
	heartbeat *Heartbeat

	mu          sync.Mutex
	view        *openView
	lastPath    string
	currentPath string
	contentID   string
}

type openView struct {
	id        string
	startedAt time.Time
}

type TabOption func(*Tab)

func WithHeartbeatInterval(d time.Duration) TabOption {
	return func(tab *Tab) { tab.heartbeat = NewHeartbeat(d) }
}

func NewTab(tracker *Tracker, opts ...TabOption) *Tab {
	tab := &Tab{
		tracker:   tracker,
		heartbeat: NewHeartbeat(DefaultHeartbeatInterval),
	}
	for _, opt := range opts {
		opt(tab)
	}
	return tab
}

// Navigate records a navigation to fullPath: the previous view is closed, the
// next one opened, the session touched and the heartbeat re-armed for the new
// path. Without consent the navigation is not remembered at all, so it can
// never surface later as a referrer.
func (tab *Tab) Navigate(ctx context.Context, fullPath string) {
	tab.mu.Lock()
	defer tab.mu.Unlock()

	if !tab.tracker.consent.HasConsent() {
		tab.view = nil
		tab.heartbeat.Stop()
		return
	}

	contentID := ContentID(fullPath)
	tab.endViewLocked(ctx)
	tab.startViewLocked(ctx, fullPath, contentID)
	tab.tracker.TouchSession(ctx, fullPath, contentID)

	tab.lastPath = fullPath
	tab.currentPath = fullPath
	tab.contentID = contentID
	tab.armLocked(ctx)
}

// SetUser links a user to the tab's writes. With a tracked path the session
// is touched right away, so it carries the user without waiting for a beat,
// and the heartbeat is re-armed.
func (tab *Tab) SetUser(ctx context.Context, userID string) {
	tab.mu.Lock()
	defer tab.mu.Unlock()

	tab.tracker.SetUser(userID)
	if tab.currentPath == "" || !tab.tracker.consent.HasConsent() {
		return
	}
	tab.tracker.TouchSession(ctx, tab.currentPath, tab.contentID)
	tab.armLocked(ctx)
}

// Hide captures dwell time when the tab becomes hidden.
func (tab *Tab) Hide(ctx context.Context) {
	tab.mu.Lock()
	defer tab.mu.Unlock()

	tab.endViewLocked(ctx)
	tab.tracker.TouchSession(ctx, tab.currentPath, tab.contentID)
}

// Close is the teardown path: like Hide, then the heartbeat is released.
func (tab *Tab) Close(ctx context.Context) {
	tab.mu.Lock()
	defer tab.mu.Unlock()

	tab.endViewLocked(ctx)
	tab.tracker.TouchSession(ctx, tab.currentPath, tab.contentID)
	tab.heartbeat.Stop()
}

// LastPath returns the path of the latest navigation.
func (tab *Tab) LastPath() string {
	tab.mu.Lock()
	defer tab.mu.Unlock()
	return tab.lastPath
}

func (tab *Tab) armLocked(ctx context.Context) {
	path, contentID := tab.currentPath, tab.contentID
	tab.heartbeat.Start(context.WithoutCancel(ctx), func(ctx context.Context) {
		tab.tracker.TouchSession(ctx, path, contentID)
	})
}
