package classify

import "strings"

// passwordManagers are process-name fragments whose clipboard writes are
// never recorded.
var passwordManagers = []string{
	"1password",
	"bitwarden",
	"keepass",
	"keepassxc",
	"lastpass",
	"dashlane",
	"roboform",
	"enpass",
	"nordpass",
	"passwarden",
}

// excludedFormats are markers that owners set to opt out of clipboard
// history.
var excludedFormats = []string{
	"Clipboard Viewer Ignore",
	"ExcludeClipboardContentFromMonitorProcessing",
	"CanIncludeInClipboardHistory",
	"CanUploadToCloudClipboard",
	"x-kde-passwordManagerHint",
}

// IsPasswordManager reports whether process belongs to a known password
// manager.
func IsPasswordManager(process string) bool {
	p := strings.ToLower(process)
	if p == "" {
		return false
	}
	for _, name := range passwordManagers {
		if strings.Contains(p, name) {
			return true
		}
	}
	return false
}

// HasExcludedFormat reports whether any advertised format opts out of
// history.
func HasExcludedFormat(formats []string) bool {
	for _, f := range formats {
		for _, marker := range excludedFormats {
			if strings.Contains(f, marker) {
				return true
			}
		}
	}
	return false
}
