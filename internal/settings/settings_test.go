package settings_test

import (
	"testing"

	"github.com/redlytics/redlytics/internal/settings"
	"github.com/stretchr/testify/assert"
)

func TestFromMapDefaults(t *testing.T) {
	t.Parallel()

	snapshot := settings.FromMap(map[string]any{})

	assert.True(t, snapshot.IgnoreAutoMod)
	assert.True(t, snapshot.IgnoreModTeamUser)
	assert.False(t, snapshot.IgnoreAllModerators)
	assert.True(t, snapshot.RestrictToMods)
	assert.False(t, snapshot.AddUserTags)
	assert.Empty(t, snapshot.UserIgnoreList)
}

func TestFromMapIgnoreList(t *testing.T) {
	t.Parallel()

	snapshot := settings.FromMap(map[string]any{
		settings.KeyUserIgnoreList: " SpamBot , otherbot,, Third ",
	})

	assert.Equal(t, []string{"spambot", "otherbot", "third"}, snapshot.UserIgnoreList)
}

func TestOnIgnoreList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		snapshot settings.Snapshot
		username string
		want     bool
	}{
		{
			name:     "automod ignored by default",
			snapshot: settings.FromMap(map[string]any{}),
			username: "AutoModerator",
			want:     true,
		},
		{
			name: "automod counted when toggled off",
			snapshot: settings.FromMap(map[string]any{
				settings.KeyIgnoreAutoMod: false,
			}),
			username: "AutoModerator",
			want:     false,
		},
		{
			name:     "modteam account ignored",
			snapshot: settings.FromMap(map[string]any{}),
			username: "golang-ModTeam",
			want:     true,
		},
		{
			name: "explicit list is case insensitive",
			snapshot: settings.FromMap(map[string]any{
				settings.KeyUserIgnoreList: "SpamBot",
			}),
			username: "spambot",
			want:     true,
		},
		{
			name:     "regular user not ignored",
			snapshot: settings.FromMap(map[string]any{}),
			username: "alice",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.snapshot.OnIgnoreList(tt.username, "golang"))
		})
	}
}
