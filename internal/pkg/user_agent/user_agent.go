package user_agent

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device types
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// Operating system families
const (
	OSAndroid = "android"
	OSIOS     = "ios"
	OSWindows = "windows"
	OSMac     = "mac"
	OSLinux   = "linux"
	OSOther   = "other"
)

type UserAgent struct {
	UserAgent  string
	DeviceType string
	OS         string
	Bot        bool
}

//go:embed database/rules.yml
var databaseFiles embed.FS

type deviceRule struct {
	Regex string `yaml:"regex"`
	Type  string `yaml:"type"`
}

type osRule struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

type botRule struct {
	Regex string `yaml:"regex"`
}

type ruleSet struct {
	Bots        []botRule    `yaml:"bots"`
	DeviceTypes []deviceRule `yaml:"device_types"`
	OSs         []osRule     `yaml:"oss"`
}

// Compiled regex cache
type RegexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *RegexCache {
	return &RegexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *RegexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

func (rc *RegexCache) match(pattern, s string) bool {
	regex, err := rc.get(pattern)
	if err != nil {
		return false
	}
	return regex.MatchString(s)
}

var (
	parser *classifier
	once   sync.Once
)

type classifier struct {
	rules      ruleSet
	regexCache *RegexCache
}

func getParser() *classifier {
	once.Do(func() {
		parser = &classifier{regexCache: newRegexCache()}
		data, err := databaseFiles.ReadFile("database/rules.yml")
		if err != nil {
			fmt.Printf("Error reading rules.yml: %v\n", err)
			return
		}
		if err := yaml.Unmarshal(data, &parser.rules); err != nil {
			fmt.Printf("Error parsing rules.yml: %v\n", err)
		}
	})
	return parser
}

func (c *classifier) deviceType(lower string) string {
	for _, rule := range c.rules.DeviceTypes {
		if c.regexCache.match(rule.Regex, lower) {
			return rule.Type
		}
	}
	return DeviceDesktop
}

func (c *classifier) os(lower string) string {
	for _, rule := range c.rules.OSs {
		if c.regexCache.match(rule.Regex, lower) {
			return rule.Name
		}
	}
	return OSOther
}

func (c *classifier) bot(lower string) bool {
	for _, rule := range c.rules.Bots {
		if c.regexCache.match(rule.Regex, lower) {
			return true
		}
	}
	return false
}

// ParseUserAgent classifies a raw user agent into device type and OS family.
// An empty user agent is a desktop on "other".
func ParseUserAgent(userAgent string) UserAgent {
	p := getParser()
	lower := strings.ToLower(userAgent)
	return UserAgent{
		UserAgent:  userAgent,
		DeviceType: p.deviceType(lower),
		OS:         p.os(lower),
		Bot:        lower != "" && p.bot(lower),
	}
}
