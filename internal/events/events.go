// Package events defines the read-only snapshots handed to the
// challenge detection engine by the web layer. Views are built per
// occurrence, consumed synchronously by the dispatcher and discarded;
// nothing here is persisted.
package events

// Identity is the resolved caller, or nil when anonymous.
type Identity struct {
	UserID   int64
	Email    string
	BasketID int64
	Deluxe   bool
}

// RequestView is a snapshot of an inbound request. Path is
// percent-decoded; several detection targets contain non-ASCII
// characters that only match after decoding.
type RequestView struct {
	Method   string
	Path     string
	Header   map[string]string
	Query    map[string]string
	Cookies  map[string]string
	Body     map[string]interface{}
	Identity *Identity
	ClientIP string

	// BearerToken is the raw credential from the Authorization header
	// or token cookie, if any. Read-only for detection purposes.
	BearerToken string
}

// ResponseView is a snapshot of an outbound response, correlated to the
// request that produced it.
type ResponseView struct {
	Status  int
	Body    string
	Errored bool
	Request *RequestView
}

// Entity kinds raised by the CRUD layer on create/update.
const (
	EntityFeedback  = "feedback"
	EntityComplaint = "complaint"
	EntityProduct   = "product"
)

// MutationView is a snapshot of a data mutation.
type MutationView struct {
	Entity   string
	EntityID string
	Fields   map[string]interface{}
	Request  *RequestView
}

// Header returns the named header from the request view, or "".
func (r *RequestView) GetHeader(name string) string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header[name]
}
