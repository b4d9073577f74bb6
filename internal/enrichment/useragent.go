package enrichment

import (
	"strings"

	"github.com/mileusna/useragent"
	"github.com/vadimbarashkov/linktrack/internal/models"
)

const (
	deviceBot     = "bot"
	deviceMobile  = "mobile"
	deviceTablet  = "tablet"
	deviceDesktop = "desktop"
)

func buildUserAgentInfo(raw string, ua useragent.UserAgent) models.UserAgentInfo {
	info := models.UserAgentInfo{
		Raw:            raw,
		BrowserName:    optional(ua.Name),
		BrowserVersion: optional(ua.Version),
		OSName:         optional(ua.OS),
		OSVersion:      optional(ua.OSVersion),
		DeviceType:     deviceType(ua),
		DeviceModel:    optional(ua.Device),
	}

	info.EngineName, info.EngineVersion = detectEngine(raw)
	info.CPUArchitecture = detectArchitecture(raw)

	return info
}

func deviceType(ua useragent.UserAgent) *string {
	switch {
	case ua.Bot:
		return optional(deviceBot)
	case ua.Mobile:
		return optional(deviceMobile)
	case ua.Tablet:
		return optional(deviceTablet)
	case ua.Desktop:
		return optional(deviceDesktop)
	}

	return nil
}

// detectEngine derives the rendering engine from marker tokens in the raw
// header. Checked most specific first: Chrome user agents also carry
// AppleWebKit, and Firefox ones carry "like Gecko" lookalikes elsewhere.
func detectEngine(raw string) (*string, *string) {
	switch {
	case strings.Contains(raw, "Trident/"):
		return optional("Trident"), tokenAfter(raw, "Trident/")
	case strings.Contains(raw, "Presto/"):
		return optional("Presto"), tokenAfter(raw, "Presto/")
	case strings.Contains(raw, "Gecko/") && strings.Contains(raw, "Firefox/"):
		return optional("Gecko"), tokenAfter(raw, "Firefox/")
	case strings.Contains(raw, "Chromium/"):
		return optional("Blink"), tokenAfter(raw, "Chromium/")
	case strings.Contains(raw, "Chrome/"):
		return optional("Blink"), tokenAfter(raw, "Chrome/")
	case strings.Contains(raw, "Edg/"):
		return optional("Blink"), tokenAfter(raw, "Edg/")
	case strings.Contains(raw, "AppleWebKit/"):
		return optional("WebKit"), tokenAfter(raw, "AppleWebKit/")
	}

	return nil, nil
}

// detectArchitecture spots CPU tokens browsers put in the platform
// section. Most user agents carry none, so nil is the common result.
func detectArchitecture(raw string) *string {
	ua := strings.ToLower(raw)

	switch {
	case strings.Contains(ua, "aarch64"), strings.Contains(ua, "arm64"):
		return optional("arm64")
	case strings.Contains(ua, "x86_64"), strings.Contains(ua, "x86-64"),
		strings.Contains(ua, "amd64"), strings.Contains(ua, "win64"),
		strings.Contains(ua, "wow64"), strings.Contains(ua, "x64"):
		return optional("amd64")
	case strings.Contains(ua, "armv"):
		return optional("arm")
	case strings.Contains(ua, "i686"), strings.Contains(ua, "i386"), strings.Contains(ua, "x86"):
		return optional("ia32")
	case strings.Contains(ua, "ppc64"):
		return optional("ppc64")
	}

	return nil
}

// tokenAfter returns the version run following marker, cut at the first
// delimiter.
func tokenAfter(raw, marker string) *string {
	i := strings.Index(raw, marker)
	if i < 0 {
		return nil
	}

	rest := raw[i+len(marker):]
	if end := strings.IndexAny(rest, " ;),"); end >= 0 {
		rest = rest[:end]
	}

	return optional(rest)
}
