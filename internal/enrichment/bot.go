package enrichment

import "strings"

// botSignatures marks crawlers, scripts and service agents that identify
// themselves. Matching is lowercase substring; an empty user agent is
// deliberately not treated as a bot.
var botSignatures = []string{
	"bot",
	"crawler",
	"spider",
	"scraper",
	"slurp",
	"curl",
	"wget",
	"python-requests",
	"go-http-client",
	"java/",
	"node-fetch",
	"axios",
	"headless",
	"facebookexternalhit",
	"whatsapp",
	"pingdom",
	"uptime",
	"monitor",
}

func matchesBotSignature(raw string) bool {
	if raw == "" {
		return false
	}

	ua := strings.ToLower(raw)
	for _, sig := range botSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}

	return false
}
