package persistence

import "net/url"

// redactURL hides credentials before a connection string reaches a log line.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "unparseable-url"
	}
	return u.Redacted()
}
