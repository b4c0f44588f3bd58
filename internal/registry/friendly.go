package registry

import "strings"

// friendlyNames maps a lowercased, ".exe"-stripped process name to the
// display name a privacy-aware user would recognize, supplementing the
// title-cased fallback for the handful of applications worth naming
// specially (§4.8 step 1).
var friendlyNames = map[string]string{
	"chrome":        "Google Chrome",
	"chromium":      "Chromium",
	"firefox":       "Firefox",
	"msedge":        "Microsoft Edge",
	"safari":        "Safari",
	"brave":         "Brave",
	"opera":         "Opera",
	"code":          "Visual Studio Code",
	"slack":         "Slack",
	"discord":       "Discord",
	"spotify":       "Spotify",
	"zoom":          "Zoom",
	"teams":         "Microsoft Teams",
	"outlook":       "Outlook",
	"mail":          "Mail",
	"dropbox":       "Dropbox",
	"steam":         "Steam",
	"curl":          "curl",
	"wget":          "wget",
	"ssh":           "SSH",
	"sshd":          "SSH Server",
	"node":          "Node.js",
	"python":        "Python",
	"python3":       "Python",
	"java":          "Java",
	"docker":        "Docker",
	"dockerd":       "Docker",
	"nginx":         "nginx",
	"systemd":       "systemd",
}

// displayNameFor resolves a normalized process name to its display name:
// a friendly-table hit, or a title-cased fallback split on "-_ " (§4.8
// step 1).
func displayNameFor(normalizedName string) string {
	if name, ok := friendlyNames[normalizedName]; ok {
		return name
	}
	return titleCase(normalizedName)
}

// titleCase upper-cases the first letter of each "-_ "-separated word.
// There's no casing-aware Unicode title-caser in the rest of the pack
// worth a dependency for this one cosmetic fallback, so it's hand-rolled.
func titleCase(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for i, f := range fields {
		if f == "" {
			continue
		}
		r := []rune(f)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		fields[i] = string(r)
	}
	if len(fields) == 0 {
		return s
	}
	return strings.Join(fields, " ")
}
