package tracking

import "nighthub/internal/pkg/user_agent"

// Classify fills in device type and OS from the user agent when the client
// did not send them. It reports whether the agent looks like a bot.
func (m *DeviceMeta) Classify() (bot bool) {
	ua := user_agent.ParseUserAgent(m.UserAgent)
	if m.DeviceType == "" {
		m.DeviceType = ua.DeviceType
	}
	if m.OS == "" {
		m.OS = ua.OS
	}
	return ua.Bot
}

// DetectDevice builds device metadata for a user agent.
func DetectDevice(userAgent, lang, tz string, pwa bool) DeviceMeta {
	meta := DeviceMeta{UserAgent: userAgent, Lang: lang, TZ: tz, IsPWA: pwa}
	meta.Classify()
	return meta
}
