package user_agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nighthub/internal/pkg/user_agent"
)

func TestParseUserAgent(t *testing.T) {
	testCases := []struct {
		name       string
		userAgent  string
		deviceType string
		os         string
		bot        bool
	}{
		{
			name:       "Chrome on Windows",
			userAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			deviceType: user_agent.DeviceDesktop,
			os:         user_agent.OSWindows,
		},
		{
			name:       "Safari on iPhone",
			userAgent:  "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			deviceType: user_agent.DeviceMobile,
			os:         user_agent.OSIOS,
		},
		{
			name:       "Chrome on Android",
			userAgent:  "Mozilla/5.0 (Linux; Android 11; SM-G998B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Mobile Safari/537.36",
			deviceType: user_agent.DeviceMobile,
			os:         user_agent.OSAndroid,
		},
		{
			name:       "Safari on iPad",
			userAgent:  "Mozilla/5.0 (iPad; CPU OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			deviceType: user_agent.DeviceTablet,
			os:         user_agent.OSIOS,
		},
		{
			name:       "Safari on macOS",
			userAgent:  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
			deviceType: user_agent.DeviceDesktop,
			os:         user_agent.OSMac,
		},
		{
			name:       "Firefox on Linux",
			userAgent:  "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0",
			deviceType: user_agent.DeviceDesktop,
			os:         user_agent.OSLinux,
		},
		{
			name:       "Android tablet",
			userAgent:  "Mozilla/5.0 (Linux; Android 12; Tablet; rv:109.0) Gecko/110.0 Firefox/110.0",
			deviceType: user_agent.DeviceTablet,
			os:         user_agent.OSAndroid,
		},
		{
			name:       "Googlebot",
			userAgent:  "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			deviceType: user_agent.DeviceDesktop,
			os:         user_agent.OSOther,
			bot:        true,
		},
		{
			name:       "empty",
			userAgent:  "",
			deviceType: user_agent.DeviceDesktop,
			os:         user_agent.OSOther,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ua := user_agent.ParseUserAgent(tc.userAgent)
			assert.Equal(t, tc.deviceType, ua.DeviceType)
			assert.Equal(t, tc.os, ua.OS)
			assert.Equal(t, tc.bot, ua.Bot)
			assert.Equal(t, tc.userAgent, ua.UserAgent)
		})
	}
}
