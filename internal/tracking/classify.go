package tracking

import (
	"regexp"
	"strings"
)

// Unknown labels a value that could not be classified.
const Unknown = "Unknown"

// Device types.
const (
	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
)

// Rule maps a user-agent predicate to a label.
type Rule struct {
	Match func(ua string) bool
	Label string
}

// Classification is the device, browser and operating system derived from a user agent.
type Classification struct {
	Device  string
	Browser string
	OS      string
}

// Classifier labels user agents with ordered rule lists. The first matching rule wins;
// Fallback is used when none match.
type Classifier struct {
	Device  []Rule
	Browser []Rule
	OS      []Rule
}

// NewClassifier returns the default user-agent rules.
func NewClassifier() *Classifier {
	return &Classifier{
		Device:  deviceRules,
		Browser: browserRules,
		OS:      osRules,
	}
}

// Classify labels ua. An empty user agent is Unknown on every axis.
func (c *Classifier) Classify(ua string) Classification {
	if ua == "" {
		return Classification{Device: Unknown, Browser: Unknown, OS: Unknown}
	}

	return Classification{
		Device:  firstMatch(c.Device, ua, DeviceDesktop),
		Browser: firstMatch(c.Browser, ua, Unknown),
		OS:      firstMatch(c.OS, ua, Unknown),
	}
}

func firstMatch(rules []Rule, ua, fallback string) string {
	for _, rule := range rules {
		if rule.Match(ua) {
			return rule.Label
		}
	}

	return fallback
}

func pattern(expr string) func(string) bool {
	return regexp.MustCompile(expr).MatchString
}

var (
	tabletPattern = pattern(`(?i)tablet|ipad|playbook|silk`)
	mobilePattern = pattern(`Mobile|Android|iP(hone|od)|IEMobile|BlackBerry|Kindle|Silk-Accelerated|(hpw|web)OS|Opera M(obi|ini)`)
	chromePattern = pattern(`(?i)chrome`)
	edgePattern   = pattern(`(?i)edge?`)
	operaPattern  = pattern(`(?i)opr`)
)

// androidTablet matches an "android" token that no later "mobile" follows.
func androidTablet(ua string) bool {
	lower := strings.ToLower(ua)

	i := strings.LastIndex(lower, "android")
	if i < 0 {
		return false
	}

	return !strings.Contains(lower[i+len("android"):], "mobile")
}

var deviceRules = []Rule{
	{Match: func(ua string) bool { return tabletPattern(ua) || androidTablet(ua) }, Label: DeviceTablet},
	{Match: mobilePattern, Label: DeviceMobile},
}

var browserRules = []Rule{
	{Match: pattern(`(?i)msie|trident`), Label: "Internet Explorer"},
	{Match: pattern(`(?i)firefox`), Label: "Firefox"},
	{Match: func(ua string) bool { return chromePattern(ua) && edgePattern(ua) }, Label: "Edge"},
	{Match: func(ua string) bool { return chromePattern(ua) && operaPattern(ua) }, Label: "Opera"},
	{Match: chromePattern, Label: "Chrome"},
	{Match: pattern(`(?i)safari`), Label: "Safari"},
	{Match: pattern(`(?i)opera`), Label: "Opera"},
}

// Android user agents also contain "Linux" and are labelled Linux.
var osRules = []Rule{
	{Match: pattern(`(?i)windows|win32|win64`), Label: "Windows"},
	{Match: pattern(`(?i)macintosh|mac os x`), Label: "Mac OS"},
	{Match: pattern(`(?i)linux`), Label: "Linux"},
	{Match: pattern(`(?i)android`), Label: "Android"},
	{Match: pattern(`(?i)iphone|ipad|ipod`), Label: "iOS"},
}
