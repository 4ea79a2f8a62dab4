// Package settings defines the admin dashboard controls that tune routing
// and cap per-user usage.
package settings

import (
	"strings"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/routing"
)

const maxUserKeyLength = 200

// Controls are the admin-set knobs persisted to the dashboard controls file.
type Controls struct {
	RoutingSensitivity   int             `json:"routingSensitivity"`
	HistoryCompression   int             `json:"historyCompression"`
	UserPromptThresholds map[string]int  `json:"userPromptThresholds"`
	LockedUserKnobs      map[string]bool `json:"lockedUserKnobs"`
}

// Update is a partial change to Controls. Nil knobs are left alone. A
// threshold <= 0 removes the user's entry, as does a false lock.
type Update struct {
	RoutingSensitivity   *float64        `json:"routingSensitivity,omitempty"`
	HistoryCompression   *float64        `json:"historyCompression,omitempty"`
	UserPromptThresholds map[string]int  `json:"userPromptThresholds,omitempty"`
	LockedUserKnobs      map[string]bool `json:"lockedUserKnobs,omitempty"`
}

// Defaults returns controls with the default knob values and no per-user rules.
func Defaults() Controls {
	return Controls{
		RoutingSensitivity:   routing.DefaultSensitivity,
		HistoryCompression:   routing.DefaultCompression,
		UserPromptThresholds: map[string]int{},
		LockedUserKnobs:      map[string]bool{},
	}
}

// Normalize clamps the knobs and drops unusable per-user entries.
func (c Controls) Normalize() Controls {
	out := Controls{
		RoutingSensitivity:   routing.ClampSetting(float64(c.RoutingSensitivity), routing.DefaultSensitivity),
		HistoryCompression:   routing.ClampSetting(float64(c.HistoryCompression), routing.DefaultCompression),
		UserPromptThresholds: make(map[string]int, len(c.UserPromptThresholds)),
		LockedUserKnobs:      make(map[string]bool, len(c.LockedUserKnobs)),
	}
	for k, v := range c.UserPromptThresholds {
		if key := UserKey(k); key != "" && v > 0 {
			out.UserPromptThresholds[key] = v
		}
	}
	for k, v := range c.LockedUserKnobs {
		if key := UserKey(k); key != "" && v {
			out.LockedUserKnobs[key] = true
		}
	}
	return out
}

// Apply returns c with u merged in.
func (c Controls) Apply(u Update) Controls {
	out := c.Normalize()
	if u.RoutingSensitivity != nil {
		out.RoutingSensitivity = routing.ClampSetting(*u.RoutingSensitivity, out.RoutingSensitivity)
	}
	if u.HistoryCompression != nil {
		out.HistoryCompression = routing.ClampSetting(*u.HistoryCompression, out.HistoryCompression)
	}
	for k, v := range u.UserPromptThresholds {
		key := UserKey(k)
		if key == "" {
			continue
		}
		if v <= 0 {
			delete(out.UserPromptThresholds, key)
			continue
		}
		out.UserPromptThresholds[key] = v
	}
	for k, v := range u.LockedUserKnobs {
		key := UserKey(k)
		if key == "" {
			continue
		}
		if !v {
			delete(out.LockedUserKnobs, key)
			continue
		}
		out.LockedUserKnobs[key] = true
	}
	return out
}

// Threshold returns the prompt cutoff for userID, if one is set.
func (c Controls) Threshold(userID string) (int, bool) {
	key := UserKey(userID)
	if key == "" {
		return 0, false
	}
	n, ok := c.UserPromptThresholds[key]
	return n, ok && n > 0
}

// Effective resolves the routing knobs for a turn. Locked users always get
// the admin values; everyone else may override each knob from the client.
func (c Controls) Effective(userID string, clientSensitivity, clientCompression *float64) routing.Settings {
	s := routing.Settings{
		RoutingSensitivity: routing.ClampSetting(float64(c.RoutingSensitivity), routing.DefaultSensitivity),
		HistoryCompression: routing.ClampSetting(float64(c.HistoryCompression), routing.DefaultCompression),
	}
	if key := UserKey(userID); key != "" && c.LockedUserKnobs[key] {
		return s
	}
	if clientSensitivity != nil {
		s.RoutingSensitivity = routing.ClampSetting(*clientSensitivity, s.RoutingSensitivity)
	}
	if clientCompression != nil {
		s.HistoryCompression = routing.ClampSetting(*clientCompression, s.HistoryCompression)
	}
	return s
}

// UserKey trims and caps a user id used as a map key.
func UserKey(userID string) string {
	key := strings.TrimSpace(userID)
	if len(key) > maxUserKeyLength {
		key = key[:maxUserKeyLength]
	}
	return key
}
