package cleaner

import (
	"strings"

	"github.com/eventstar/eventstar/pkg/types"
)

// mobileOS lists operating systems that always mean a mobile device. iOS rows
// are classified through their browser.
var mobileOS = map[string]struct{}{
	"android": {},
}

const (
	mobileBrowserMarker = "mobile"
	desktopOSMarker     = "windows"
)

// ClassifyDevice derives the device type from browser and OS. Matching is
// case-insensitive on trimmed values; absent values count as empty.
//
// A mobile browser reported on a desktop OS is contradictory and always
// classifies as unknown.
func ClassifyDevice(browser, os types.NullString) types.DeviceType {
	b := strings.ToLower(strings.TrimSpace(browser.Or("")))
	o := strings.ToLower(strings.TrimSpace(os.Or("")))

	mobileBrowser := strings.Contains(b, mobileBrowserMarker)
	desktopOS := strings.Contains(o, desktopOSMarker)

	var dt types.DeviceType
	_, isMobileOS := mobileOS[o]
	switch {
	case isMobileOS:
		dt = types.DeviceMobile
	case mobileBrowser && !desktopOS:
		dt = types.DeviceMobile
	case b != "" && o != "":
		dt = types.DeviceDesktop
	default:
		dt = types.DeviceUnknown
	}

	if mobileBrowser && desktopOS {
		dt = types.DeviceUnknown
	}
	return dt
}
