// Package settings models the operator-editable options bag as a typed
// snapshot. Operations that depend on dynamic settings take a Snapshot
// loaded at their start instead of reading ad hoc string keys mid-flight.
package settings

import (
	"context"
	"strings"

	"github.com/redlytics/redlytics/internal/platform"
)

// Recognized settings keys.
const (
	KeyIgnoreAutoMod       = "ignoreAutomod"
	KeyIgnoreModTeamUser   = "ignoreModTeamUser"
	KeyIgnoreAllModerators = "ignoreAllModerators"
	KeyUserIgnoreList      = "userIgnoreList"
	KeyRestrictToMods      = "restrictToMods"
	KeyAddUserTags         = "addUserTags"
)

// Snapshot is a point-in-time view of the recognized settings.
type Snapshot struct {
	// IgnoreAutoMod skips counting for AutoModerator.
	IgnoreAutoMod bool
	// IgnoreModTeamUser skips counting for the community's -ModTeam account.
	IgnoreModTeamUser bool
	// IgnoreAllModerators skips counting for any moderator.
	IgnoreAllModerators bool
	// UserIgnoreList holds lowercased usernames to skip.
	UserIgnoreList []string
	// RestrictToMods limits report pages to moderators.
	RestrictToMods bool
	// AddUserTags renders usernames as /u/ links in reports.
	AddUserTags bool
}

// Load fetches the raw settings mapping and parses it into a Snapshot.
func Load(ctx context.Context, provider platform.Settings) (Snapshot, error) {
	values, err := provider.GetSettings(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	return FromMap(values), nil
}

// FromMap parses a raw settings mapping. Unknown keys are ignored and
// missing keys fall back to defaults (AutoMod and -ModTeam ignored).
func FromMap(values map[string]any) Snapshot {
	snapshot := Snapshot{
		IgnoreAutoMod:     boolValue(values, KeyIgnoreAutoMod, true),
		IgnoreModTeamUser: boolValue(values, KeyIgnoreModTeamUser, true),
		IgnoreAllModerators: boolValue(
			values, KeyIgnoreAllModerators, false),
		RestrictToMods: boolValue(values, KeyRestrictToMods, true),
		AddUserTags:    boolValue(values, KeyAddUserTags, false),
	}

	if raw, ok := values[KeyUserIgnoreList].(string); ok && raw != "" {
		for _, name := range strings.Split(raw, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name != "" {
				snapshot.UserIgnoreList = append(snapshot.UserIgnoreList, name)
			}
		}
	}

	return snapshot
}

// OnIgnoreList evaluates the static portion of the ignore rules for an
// author. The all-moderators rule needs a roster lookup and is applied by
// the caller through the moderator cache.
func (s Snapshot) OnIgnoreList(username, subreddit string) bool {
	if s.IgnoreAutoMod && username == "AutoModerator" {
		return true
	}

	if s.IgnoreModTeamUser && username == subreddit+"-ModTeam" {
		return true
	}

	lower := strings.ToLower(username)
	for _, ignored := range s.UserIgnoreList {
		if lower == ignored {
			return true
		}
	}

	return false
}

func boolValue(values map[string]any, key string, fallback bool) bool {
	if v, ok := values[key].(bool); ok {
		return v
	}

	return fallback
}
