package useragent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		userAgent  string
		browser    string
		deviceType string
		bot        bool
	}{
		{
			name:       "chrome on mac",
			userAgent:  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			browser:    "chrome",
			deviceType: DeviceDesktop,
		},
		{
			name:       "edge advertises chrome but wins by specificity",
			userAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
			browser:    "edge",
			deviceType: DeviceDesktop,
		},
		{
			name:       "safari on iphone",
			userAgent:  "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			browser:    "safari",
			deviceType: DeviceMobile,
		},
		{
			name:       "chrome on android phone",
			userAgent:  "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			browser:    "chrome",
			deviceType: DeviceMobile,
		},
		{
			name:       "android without mobile token is a tablet",
			userAgent:  "Mozilla/5.0 (Linux; Android 14; SM-X910) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			browser:    "chrome",
			deviceType: DeviceTablet,
		},
		{
			name:       "safari on ipad",
			userAgent:  "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			browser:    "safari",
			deviceType: DeviceTablet,
		},
		{
			name:       "firefox on windows",
			userAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
			browser:    "firefox",
			deviceType: DeviceDesktop,
		},
		{
			name:       "googlebot is a bot",
			userAgent:  "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			deviceType: DeviceBot,
			browser:    UnknownBrowser,
			bot:        true,
		},
		{
			name:       "curl is a bot",
			userAgent:  "curl/8.4.0",
			deviceType: DeviceBot,
			browser:    UnknownBrowser,
			bot:        true,
		},
		{
			name:       "headless chrome is a bot",
			userAgent:  "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36",
			deviceType: DeviceBot,
			browser:    UnknownBrowser,
			bot:        true,
		},
		{
			name:       "empty string is an unknown desktop",
			userAgent:  "",
			browser:    UnknownBrowser,
			deviceType: DeviceDesktop,
		},
		{
			name:       "opera wins over chrome",
			userAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 OPR/106.0.0.0",
			browser:    "opera",
			deviceType: DeviceDesktop,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.userAgent)
			assert.Equal(t, tt.browser, got.Browser)
			assert.Equal(t, tt.deviceType, got.DeviceType)
			assert.Equal(t, tt.bot, got.Bot)
		})
	}
}
