package client

import (
	"strings"

	"github.com/teamchat/teamchat/internal/store"
)

const userNameKey = "user_name"

// UserName returns the stored display name, falling back to "Guest" when
// none is set or the cache is unavailable.
func UserName(cache store.MessageCache) string {
	if cache == nil {
		return "Guest"
	}
	name, err := cache.Setting(userNameKey)
	if err != nil || strings.TrimSpace(name) == "" {
		return "Guest"
	}
	return name
}

// SetUserName stores the display name, trimmed, with "Guest" replacing an
// empty value.
func SetUserName(cache store.MessageCache, name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		trimmed = "Guest"
	}
	return cache.SetSetting(userNameKey, trimmed)
}
