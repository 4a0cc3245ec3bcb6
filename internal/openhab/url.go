package openhab

import (
	"net/url"
	"strings"

	"github.com/nerrad567/openhab-bridge/internal/infrastructure/config"
)

const (
	itemsPath  = "/rest/items/"
	eventsPath = "/rest/events/"
)

// BaseURL assembles <protocol>://[<user>[:<password>]@]<host>[:<port>][/<path>].
//
// The protocol defaults to http. A blank username omits credentials and
// the password is only added when non-empty. Leading and trailing slashes
// of the path are stripped.
func BaseURL(cfg config.ControllerConfig) string {
	protocol := strings.TrimSpace(cfg.Protocol)
	if protocol == "" {
		protocol = config.DefaultProtocol
	}

	var b strings.Builder
	b.WriteString(protocol)
	b.WriteString("://")

	if user := strings.TrimSpace(cfg.Username); user != "" {
		var info *url.Userinfo
		if cfg.Password != "" {
			info = url.UserPassword(user, cfg.Password)
		} else {
			info = url.User(user)
		}
		b.WriteString(info.String())
		b.WriteByte('@')
	}

	b.WriteString(strings.TrimSpace(cfg.Host))

	if port := strings.TrimSpace(cfg.Port); port != "" {
		b.WriteByte(':')
		b.WriteString(port)
	}

	if path := strings.Trim(strings.TrimSpace(cfg.Path), "/"); path != "" {
		b.WriteByte('/')
		b.WriteString(path)
	}

	return b.String()
}

// EventsURL is the stream endpoint filtered to item events.
func EventsURL(base, busPrefix string) string {
	return base + eventsPath + "?topics=" + busPrefix + "/items"
}

// ItemsURL is the item collection endpoint.
func ItemsURL(base string) string {
	return base + itemsPath
}

// ItemURL is the resource of a single item.
func ItemURL(base, item string) string {
	return base + itemsPath + url.PathEscape(item)
}

// redact strips the password from a URL for log and error messages.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
