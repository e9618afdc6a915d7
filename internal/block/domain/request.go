package domain

// ResourceType classifies an intercepted request.
type ResourceType string

const (
	// ResourceMainFrame is a top-level page navigation.
	ResourceMainFrame ResourceType = "main_frame"
	// ResourceSubFrame is an embedded frame navigation.
	ResourceSubFrame ResourceType = "sub_frame"
	// ResourceOther covers every other sub-resource.
	ResourceOther ResourceType = "other"
)

// RequestDetails describes a request handed to an interceptor callback.
// RequestID names this particular held request; several requests of one tab
// can be held at once and each is answered on its own.
type RequestDetails struct {
	TabID        string
	RequestID    string
	URL          string
	Method       string
	ResourceType ResourceType
}

// Decision is the interceptor callback's verdict on a request.
// The zero value lets the request proceed.
type Decision struct {
	Cancel bool
}

// InterceptFunc is an interceptor callback. It runs synchronously while the
// request is held.
type InterceptFunc func(RequestDetails) Decision

// RequestFilter selects which requests an interceptor sees.
type RequestFilter struct {
	Patterns      []string
	ResourceTypes []ResourceType
}

// Accepts reports whether the filter admits the resource type. An empty
// type list admits everything.
func (f RequestFilter) Accepts(rt ResourceType) bool {
	if len(f.ResourceTypes) == 0 {
		return true
	}
	for _, t := range f.ResourceTypes {
		if t == rt {
			return true
		}
	}
	return false
}

// Tab identifies a navigating client and its current URL.
type Tab struct {
	ID  string
	URL string
}
