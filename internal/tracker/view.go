package tracker

import (
	"context"
	"strings"

	"nighthub/internal/tracking"
)

// StartView opens a page view for fullPath, closing any view still open. It
// returns the view id, or false without consent.
func (tab *Tab) StartView(ctx context.Context, fullPath, contentID string) (string, bool) {
	tab.mu.Lock()
	defer tab.mu.Unlock()
	return tab.startViewLocked(ctx, fullPath, contentID)
}

// EndView closes the open view. It reports false when there was none.
func (tab *Tab) EndView(ctx context.Context) bool {
	tab.mu.Lock()
	defer tab.mu.Unlock()
	return tab.endViewLocked(ctx)
}

// OpenView returns the id of the open view, if any.
func (tab *Tab) OpenView() (string, bool) {
	tab.mu.Lock()
	defer tab.mu.Unlock()
	if tab.view == nil {
		return "", false
	}
	return tab.view.id, true
}

func (tab *Tab) startViewLocked(ctx context.Context, fullPath, contentID string) (string, bool) {
	tab.endViewLocked(ctx)

	tr := tab.tracker
	ref, ok := tr.EnsureSession(ctx, fullPath, contentID)
	if !ok || !tr.consent.HasConsent() {
		return "", false
	}

	referrer := tab.lastPath
	if referrer == "" {
		referrer = tr.env.Referrer
	}

	now := tr.now()
	id := tr.newID()
	tab.view = &openView{id: id, startedAt: now}

	tr.write("start view", tr.sink.StartView(ctx, tracking.ViewStart{
		ID:        id,
		SessionID: ref.SessionID,
		DeviceID:  ref.DeviceID,
		UserID:    tr.user(),
		Path:      fullPath,
		Screen:    screenOf(fullPath),
		Referrer:  referrer,
		EventID:   contentID,
		StartedAt: now,
	}))
	return id, true
}

func (tab *Tab) endViewLocked(ctx context.Context) bool {
	view := tab.view
	if view == nil {
		return false
	}
	tab.view = nil

	tr := tab.tracker
	if !tr.consent.HasConsent() {
		return true
	}
	now := tr.now()
	tr.write("end view", tr.sink.EndView(ctx, tracking.ViewEnd{
		ID:         view.id,
		EndedAt:    now,
		DurationMs: max(0, now.Sub(view.startedAt).Milliseconds()),
	}))
	return true
}

func screenOf(fullPath string) string {
	if i := strings.IndexAny(fullPath, "?#"); i >= 0 {
		return fullPath[:i]
	}
	return fullPath
}
