package cache

import (
	"encoding/json"
	"net/http"
)

// Options are the request parameters of a fetch. They are opaque to the
// cache apart from taking part in the cache key.
type Options struct {
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

func (o *Options) method() string {
	if o == nil || o.Method == "" {
		return http.MethodGet
	}
	return o.Method
}

type keyParts struct {
	URL     string   `json:"url"`
	Options *Options `json:"options"`
}

// Key returns the cache key for a request: the JSON serialization of
// {url, options}. Header maps are encoded with sorted keys, so equal options
// always produce the same key.
func Key(url string, opts *Options) string {
	if opts == nil {
		opts = &Options{}
	}
	b, err := json.Marshal(keyParts{URL: url, Options: opts})
	if err != nil {
		// Options only holds strings, so this cannot fail.
		panic("cache: marshal key: " + err.Error())
	}
	return string(b)
}
