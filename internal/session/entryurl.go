// Package session bootstraps and owns one study session: token gate, content
// store, remote client, loader, sync worker and the active study mode.
package session

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// AirtableParams are the direct-mode connection parameters carried by the
// entry URL, legacy names preserved: the words (contents) table and the users
// table each name their own base. Proxy-mode launches omit them.
type AirtableParams struct {
	APIKey      string
	WordsBaseID string
	WordsTable  string
	UsersBaseID string
	UsersTable  string
}

// EntryParams is the parsed launch request.
type EntryParams struct {
	Token    string
	Phone    string
	Contents string
	Type     string
	Airtable AirtableParams

	// StrippedKeys lists the sensitive parameters that were present and must
	// not survive into logs, history or re-shared links.
	StrippedKeys []string
}

// sensitiveKeys never leave the parser.
var sensitiveKeys = map[string]bool{
	"token":                   true,
	"phoneParam":              true,
	"airtable_apikey":         true,
	"airtable_contents_DB":    true,
	"airtable_contents_table": true,
	"airtable_user_DB":        true,
	"airtable_user_table":     true,
}

// ParseEntryURL parses a launch URL. The chatbot wraps the real parameters in
// a nested urlencoded querystring under urlParams; values found there win over
// the outer query.
func ParseEntryURL(raw string) (EntryParams, error) {
	var params EntryParams
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return params, fmt.Errorf("url.Parse > %w", err)
	}

	values := parsed.Query()
	if nested := values.Get("urlParams"); nested != "" {
		inner, err := url.ParseQuery(nested)
		if err != nil {
			return params, fmt.Errorf("url.ParseQuery(urlParams) > %w", err)
		}
		for key, vs := range inner {
			values[key] = vs
		}
	}

	get := func(key string) string { return strings.TrimSpace(values.Get(key)) }
	params.Token = get("token")
	params.Phone = get("phoneParam")
	params.Contents = get("contents")
	params.Type = get("type")
	params.Airtable = AirtableParams{
		APIKey:      get("airtable_apikey"),
		WordsBaseID: get("airtable_contents_DB"),
		WordsTable:  get("airtable_contents_table"),
		UsersBaseID: get("airtable_user_DB"),
		UsersTable:  get("airtable_user_table"),
	}

	for key := range values {
		if sensitiveKeys[key] && get(key) != "" {
			params.StrippedKeys = append(params.StrippedKeys, key)
		}
	}
	sort.Strings(params.StrippedKeys)
	return params, nil
}
