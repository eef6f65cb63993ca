// Package useragent classifies user-agent strings into a browser name and a
// device type using an embedded rules database.
package useragent

import (
	_ "embed"
	"fmt"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

// Device types produced by the classifier.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
)

// UnknownBrowser is reported when no browser rule matches.
const UnknownBrowser = "unknown"

// UserAgent is the classification result for one user-agent string.
type UserAgent struct {
	Browser    string
	DeviceType string
	Bot        bool
}

//go:embed rules.yml
var rulesYAML []byte

type browserRule struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

type deviceRule struct {
	Regex string `yaml:"regex"`
	Type  string `yaml:"type"`
}

type botRule struct {
	Regex string `yaml:"regex"`
}

type rulesFile struct {
	Bots     []botRule     `yaml:"bots"`
	Browsers []browserRule `yaml:"browsers"`
	Devices  []deviceRule  `yaml:"devices"`
}

type classifier struct {
	bots     []*regexp.Regexp
	browsers []struct {
		re   *regexp.Regexp
		name string
	}
	devices []struct {
		re  *regexp.Regexp
		typ string
	}
}

var (
	instance *classifier
	once     sync.Once
)

func getClassifier() *classifier {
	once.Do(func() {
		var rules rulesFile
		if err := yaml.Unmarshal(rulesYAML, &rules); err != nil {
			// The rules file is embedded and validated by tests; a parse
			// failure here is a build defect.
			panic(fmt.Sprintf("useragent: invalid embedded rules: %v", err))
		}

		c := &classifier{}
		for _, b := range rules.Bots {
			c.bots = append(c.bots, regexp.MustCompile(b.Regex))
		}
		for _, b := range rules.Browsers {
			c.browsers = append(c.browsers, struct {
				re   *regexp.Regexp
				name string
			}{regexp.MustCompile(b.Regex), b.Name})
		}
		for _, d := range rules.Devices {
			c.devices = append(c.devices, struct {
				re  *regexp.Regexp
				typ string
			}{regexp.MustCompile(d.Regex), d.Type})
		}
		instance = c
	})
	return instance
}

// Parse classifies a user-agent string. Empty input classifies as an unknown
// desktop browser; bots get DeviceBot and the Bot flag.
func Parse(userAgent string) UserAgent {
	c := getClassifier()

	for _, re := range c.bots {
		if re.MatchString(userAgent) {
			return UserAgent{Browser: UnknownBrowser, DeviceType: DeviceBot, Bot: true}
		}
	}

	browser := UnknownBrowser
	for _, b := range c.browsers {
		if b.re.MatchString(userAgent) {
			browser = b.name
			break
		}
	}

	deviceType := DeviceDesktop
	for _, d := range c.devices {
		if d.re.MatchString(userAgent) {
			deviceType = d.typ
			break
		}
	}

	return UserAgent{Browser: browser, DeviceType: deviceType}
}
