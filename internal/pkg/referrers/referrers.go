// Package referrers names the places app traffic arrives from.
package referrers

import (
	"net/url"
	"strings"
)

const (
	Direct   = "Direct"
	Internal = "Internal"
)

// Hostnames that send traffic to a nightlife app, by display name.
var knownReferrers = map[string]string{
	"google.com":     "Google",
	"google.es":      "Google",
	"google.co.uk":   "Google",
	"google.de":      "Google",
	"google.fr":      "Google",
	"bing.com":       "Bing",
	"duckduckgo.com": "DuckDuckGo",
	"ecosia.org":     "Ecosia",

	"instagram.com":   "Instagram",
	"l.instagram.com": "Instagram",
	"facebook.com":    "Facebook",
	"l.facebook.com":  "Facebook",
	"m.facebook.com":  "Facebook",
	"fb.com":          "Facebook",
	"tiktok.com":      "TikTok",
	"x.com":           "X/Twitter",
	"twitter.com":     "X/Twitter",
	"t.co":            "X/Twitter",
	"threads.net":     "Threads",
	"youtube.com":     "YouTube",
	"youtu.be":        "YouTube",
	"snapchat.com":    "Snapchat",
	"reddit.com":      "Reddit",
	"whatsapp.com":    "WhatsApp",
	"wa.me":           "WhatsApp",
	"telegram.org":    "Telegram",
	"t.me":            "Telegram",
	"discord.com":     "Discord",

	"ra.co":               "Resident Advisor",
	"residentadvisor.net": "Resident Advisor",
	"xceed.me":            "Xceed",
	"feverup.com":         "Fever",
	"dice.fm":             "DICE",
	"eventbrite.com":      "Eventbrite",
	"eventbrite.es":       "Eventbrite",
	"songkick.com":        "Songkick",
	"spotify.com":         "Spotify",
	"open.spotify.com":    "Spotify",
	"soundcloud.com":      "SoundCloud",
	"mixcloud.com":        "Mixcloud",
	"linktr.ee":           "Linktree",
}

// Android in-app browsers report the calling app as the referrer.
var androidApps = map[string]string{
	"com.instagram.android":                   "Instagram",
	"com.facebook.katana":                     "Facebook",
	"com.zhiliaoapp.musically":                "TikTok",
	"com.whatsapp":                            "WhatsApp",
	"org.telegram.messenger":                  "Telegram",
	"com.google.android.gm":                   "Gmail",
	"com.google.android.googlequicksearchbox": "Google",
}

// FriendlyName returns a display name for a referrer hostname. Unknown
// hostnames come back without "www." and with the first letter capitalized.
func FriendlyName(hostname string) string {
	hostname = strings.ToLower(strings.TrimSpace(hostname))

	if name, ok := knownReferrers[hostname]; ok {
		return name
	}

	if strings.HasPrefix(hostname, "www.") {
		withoutWWW := hostname[4:]
		if name, ok := knownReferrers[withoutWWW]; ok {
			return name
		}
		hostname = withoutWWW
	}

	// The longest matching parent domain wins so results do not depend on
	// map iteration order.
	best := ""
	for domain := range knownReferrers {
		if strings.HasSuffix(hostname, "."+domain) && len(domain) > len(best) {
			best = domain
		}
	}
	if best != "" {
		return knownReferrers[best]
	}

	return capitalizeFirst(hostname)
}

// Source classifies a raw referrer as recorded by the tracker: empty means
// direct, an in-app path means internal navigation, anything else is named
// by its host.
func Source(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return Direct
	}
	if strings.HasPrefix(referrer, "/") && !strings.HasPrefix(referrer, "//") {
		return Internal
	}

	u, err := url.Parse(referrer)
	if err != nil {
		return Direct
	}
	if u.Scheme == "android-app" {
		if name, ok := androidApps[strings.ToLower(u.Host)]; ok {
			return name
		}
		return capitalizeFirst(u.Host)
	}
	host := u.Hostname()
	if host == "" {
		// "instagram.com/p/x" without a scheme parses as a path.
		if u2, err := url.Parse("https://" + strings.TrimPrefix(referrer, "//")); err == nil {
			host = u2.Hostname()
		}
	}
	if host == "" {
		return Direct
	}
	return FriendlyName(host)
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
