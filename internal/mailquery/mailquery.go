// Package mailquery translates structured search filters into the Gmail
// query-operator syntax understood by the mailbox integration.
package mailquery

import "strings"

// DateRange bounds a search by date. Dates are YYYY-MM-DD strings, passed
// through verbatim to the remote service.
type DateRange struct {
	// Start becomes an "after:" operator when non-empty.
	Start string

	// End becomes a "before:" operator when non-empty.
	End string
}

// Filters is the structured form of a mailbox search request.
type Filters struct {
	// NaturalQuery is free text matched against message content.
	NaturalQuery string

	// DateRange optionally bounds the search by date.
	DateRange *DateRange

	// Sender becomes a "from:" operator when non-empty.
	Sender string

	// HasAttachment adds "has:attachment".
	HasAttachment bool

	// IsUnread adds "is:unread".
	IsUnread bool
}

// Build concatenates the present filters into a single query string.
//
// The operator order is a stable contract relied on by tests and by cached
// query keys: free text, after:, before:, from:, has:attachment, is:unread.
// Absent fields are omitted; terms are joined with single spaces.
func Build(f Filters) string {
	var terms []string

	if f.NaturalQuery != "" {
		terms = append(terms, f.NaturalQuery)
	}
	if f.DateRange != nil {
		if f.DateRange.Start != "" {
			terms = append(terms, "after:"+f.DateRange.Start)
		}
		if f.DateRange.End != "" {
			terms = append(terms, "before:"+f.DateRange.End)
		}
	}
	if f.Sender != "" {
		terms = append(terms, "from:"+f.Sender)
	}
	if f.HasAttachment {
		terms = append(terms, "has:attachment")
	}
	if f.IsUnread {
		terms = append(terms, "is:unread")
	}

	return strings.Join(terms, " ")
}

// FromArgs extracts [Filters] from the structured arguments of a mailbox
// search tool call. Unknown keys and wrong-typed values are ignored.
func FromArgs(args map[string]any) Filters {
	f := Filters{
		NaturalQuery:  stringArg(args, "query"),
		Sender:        stringArg(args, "from"),
		HasAttachment: boolArg(args, "hasAttachment"),
		IsUnread:      boolArg(args, "isUnread"),
	}
	if after, before := stringArg(args, "after"), stringArg(args, "before"); after != "" || before != "" {
		f.DateRange = &DateRange{Start: after, End: before}
	}
	return f
}

// RewriteArgs converts structured search arguments into the wire form the
// mailbox integration expects: the filter keys are replaced by a single "q"
// operator string built with [Build], other keys pass through untouched.
// Arguments that already carry a "q" string are returned unchanged, so
// callers issuing raw operator queries keep working.
func RewriteArgs(args map[string]any) map[string]any {
	if q, ok := args["q"].(string); ok && q != "" {
		return args
	}

	out := make(map[string]any, len(args))
	for k, v := range args {
		switch k {
		case "query", "after", "before", "from", "hasAttachment", "isUnread":
		default:
			out[k] = v
		}
	}
	out["q"] = Build(FromArgs(args))
	return out
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}
