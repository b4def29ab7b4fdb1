// Package uaparse classifies user-agent strings against an embedded
// signature database: bot/crawler detection plus browser, OS and device
// type extraction.
package uaparse

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

//go:embed signatures.yml
var signatureData []byte

// signatureEntry is one regex matcher loaded from signatures.yml.
type signatureEntry struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type signatureDB struct {
	Bots     []signatureEntry `yaml:"bots"`
	Browsers []signatureEntry `yaml:"browsers"`
	OSs      []signatureEntry `yaml:"oss"`
}

// UserAgent holds the parsed classification of a user-agent string.
type UserAgent struct {
	UserAgent      string
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	Device         string
	Mobile         bool
	Tablet         bool
	Desktop        bool
	Bot            bool
	BotNames       []string
}

// Compiled regex cache
type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *regexCache {
	return &regexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	// Double-check pattern
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

var (
	parser *signatureParser
	once   sync.Once
)

type signatureParser struct {
	db    signatureDB
	cache *regexCache
}

func getParser() *signatureParser {
	once.Do(func() {
		parser = &signatureParser{cache: newRegexCache()}
		if err := yaml.Unmarshal(signatureData, &parser.db); err != nil {
			fmt.Printf("Error parsing signatures.yml: %v\n", err)
		}
	})
	return parser
}

// MatchBotSignatures returns the names of every bot signature the
// user-agent matches, in database order. A pattern that fails to compile
// is skipped rather than aborting the scan.
func MatchBotSignatures(userAgent string) []string {
	p := getParser()
	lower := strings.ToLower(userAgent)

	var matched []string
	for _, entry := range p.db.Bots {
		regex, err := p.cache.get(entry.Regex)
		if err != nil {
			continue
		}
		if regex.MatchString(lower) {
			matched = append(matched, entry.Name)
		}
	}
	return matched
}

func (p *signatureParser) matchFirst(entries []signatureEntry, userAgent string) (string, string) {
	for _, entry := range entries {
		regex, err := p.cache.get(entry.Regex)
		if err != nil {
			continue
		}
		matches := regex.FindStringSubmatch(userAgent)
		if len(matches) == 0 {
			continue
		}

		version := entry.Version
		if version == "" && len(matches) > 1 {
			version = "$1"
		}
		for i, match := range matches[1:] {
			placeholder := fmt.Sprintf("$%d", i+1)
			version = strings.ReplaceAll(version, placeholder, match)
		}
		// Unresolved placeholders mean the entry captured nothing
		if strings.HasPrefix(version, "$") {
			version = ""
		}
		return entry.Name, strings.ReplaceAll(version, "_", ".")
	}
	return "Unknown", ""
}

func deviceType(userAgent string) (device string, mobile, tablet, desktop bool) {
	ua := strings.ToLower(userAgent)

	// Tablet indicators first, they often contain "mobile" too
	if strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad") ||
		strings.Contains(ua, "playbook") || strings.Contains(ua, "silk") {
		return "tablet", false, true, false
	}

	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") ||
		strings.Contains(ua, "iphone") || strings.Contains(ua, "ipod") ||
		strings.Contains(ua, "blackberry") || strings.Contains(ua, "windows phone") {
		return "mobile", true, false, false
	}

	return "desktop", false, false, true
}

// Parse classifies a user-agent string. Bots short-circuit browser and
// OS extraction.
func Parse(userAgent string) UserAgent {
	p := getParser()

	if bots := MatchBotSignatures(userAgent); len(bots) > 0 {
		return UserAgent{
			UserAgent: userAgent,
			Browser:   "Unknown",
			OS:        "Unknown",
			Device:    "bot",
			Bot:       true,
			BotNames:  bots,
		}
	}

	browser, browserVersion := p.matchFirst(p.db.Browsers, userAgent)
	os, osVersion := p.matchFirst(p.db.OSs, userAgent)
	device, mobile, tablet, desktop := deviceType(userAgent)

	return UserAgent{
		UserAgent:      userAgent,
		Browser:        browser,
		BrowserVersion: browserVersion,
		OS:             os,
		OSVersion:      osVersion,
		Device:         device,
		Mobile:         mobile,
		Tablet:         tablet,
		Desktop:        desktop,
	}
}
