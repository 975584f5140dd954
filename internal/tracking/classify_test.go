package tracking_test

import (
	"testing"

	"github.com/serroba/link-tracker/internal/tracking"
	"github.com/stretchr/testify/assert"
)

const (
	uaChromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaEdgeWindows   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0"
	uaOperaMac      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 OPR/105.0.0.0"
	uaFirefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaSafariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	uaSafariIPad    = "Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	uaAndroidPhone  = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	uaAndroidTablet = "Mozilla/5.0 (Linux; Android 13; SM-X710) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaIE11          = "Mozilla/5.0 (Windows NT 6.1; WOW64; Trident/7.0; rv:11.0) like Gecko"
	uaOperaPresto   = "Opera/9.80 (X11; Linux i686) Presto/2.12.388 Version/12.16"
	uaCurl          = "curl/8.4.0"
)

func TestClassifier_Classify(t *testing.T) {
	tests := []struct {
		name     string
		ua       string
		expected tracking.Classification
	}{
		{
			name:     "empty user agent",
			ua:       "",
			expected: tracking.Classification{Device: "Unknown", Browser: "Unknown", OS: "Unknown"},
		},
		{
			name:     "chrome on windows",
			ua:       uaChromeWindows,
			expected: tracking.Classification{Device: "Desktop", Browser: "Chrome", OS: "Windows"},
		},
		{
			name:     "edge on windows",
			ua:       uaEdgeWindows,
			expected: tracking.Classification{Device: "Desktop", Browser: "Edge", OS: "Windows"},
		},
		{
			name:     "chromium opera on mac",
			ua:       uaOperaMac,
			expected: tracking.Classification{Device: "Desktop", Browser: "Opera", OS: "Mac OS"},
		},
		{
			name:     "firefox on linux",
			ua:       uaFirefoxLinux,
			expected: tracking.Classification{Device: "Desktop", Browser: "Firefox", OS: "Linux"},
		},
		{
			name:     "safari on iphone reports mac os",
			ua:       uaSafariIPhone,
			expected: tracking.Classification{Device: "Mobile", Browser: "Safari", OS: "Mac OS"},
		},
		{
			name:     "ipad is a tablet",
			ua:       uaSafariIPad,
			expected: tracking.Classification{Device: "Tablet", Browser: "Safari", OS: "Mac OS"},
		},
		{
			name:     "android phone reports linux",
			ua:       uaAndroidPhone,
			expected: tracking.Classification{Device: "Mobile", Browser: "Chrome", OS: "Linux"},
		},
		{
			name:     "android without mobile is a tablet",
			ua:       uaAndroidTablet,
			expected: tracking.Classification{Device: "Tablet", Browser: "Chrome", OS: "Linux"},
		},
		{
			name:     "internet explorer",
			ua:       uaIE11,
			expected: tracking.Classification{Device: "Desktop", Browser: "Internet Explorer", OS: "Windows"},
		},
		{
			name:     "presto opera",
			ua:       uaOperaPresto,
			expected: tracking.Classification{Device: "Desktop", Browser: "Opera", OS: "Linux"},
		},
		{
			name:     "unrecognized client",
			ua:       uaCurl,
			expected: tracking.Classification{Device: "Desktop", Browser: "Unknown", OS: "Unknown"},
		},
	}

	c := tracking.NewClassifier()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Classify(tt.ua))
		})
	}
}

func TestClassifier_CustomRules(t *testing.T) {
	c := tracking.NewClassifier()
	c.Browser = append([]tracking.Rule{{
		Match: func(ua string) bool { return ua == uaCurl },
		Label: "curl",
	}}, c.Browser...)

	assert.Equal(t, "curl", c.Classify(uaCurl).Browser)
	assert.Equal(t, "Chrome", c.Classify(uaChromeWindows).Browser)
}
