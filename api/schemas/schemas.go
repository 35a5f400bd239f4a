package schemas

// -- Page Analysis Schemas --

// PageAnalysis is the affordance map produced by the page analyzer for a single
// analysis cycle. Each selector is a CSS selector string; an empty string means
// the analyzer believes the affordance is not present on the current page.
//
// The map is consumed once and never persisted. IsLoggedIn terminates the login
// state machine regardless of any other field.
type PageAnalysis struct {
	EmailSelector         string `json:"email_selector"`
	PasswordSelector      string `json:"password_selector"`
	OTPSelector           string `json:"otp_selector"`
	PrimaryActionSelector string `json:"primary_action_button_selector"`
	CookieButtonSelector  string `json:"cookie_button_selector"`
	IsLoggedIn            bool   `json:"is_logged_in"`
	StepDescription       string `json:"step_description"`
}

// -- Actuation Schemas --

// Technique identifies one fallback strategy in an actuation ladder.
type Technique string

const (
	TechniqueNative       Technique = "native"
	TechniqueSimulated    Technique = "simulated"
	TechniqueDOMInjection Technique = "dom-injection"

	// OTP-specific techniques.
	TechniqueGlobalPaste Technique = "global-paste"
	TechniqueFocusPaste  Technique = "focus-paste"
	TechniqueFocusType   Technique = "focus-type"
	TechniqueOperator    Technique = "operator"
)

// ActionOutcome reports the result of a single technique attempt. It is
// ephemeral; the actuator never raises on a partial failure, only reports
// exhaustion of the whole ladder as a false success.
type ActionOutcome struct {
	Technique Technique `json:"technique"`
	Succeeded bool      `json:"succeeded"`
}

// -- Network Event Schemas --

// NetworkEvent is one captured programmatic exchange (fetch/XHR). Events are
// immutable once created and appended to the raw log in completion order.
//
// Post bodies that cannot be represented as text are preserved base64-encoded
// with PostDataIsBinary set, rather than being dropped.
type NetworkEvent struct {
	Method           string            `json:"method"`
	URL              string            `json:"url"`
	RequestHeaders   map[string]string `json:"request_headers"`
	Status           int64             `json:"status"`
	PostData         string            `json:"post_data,omitempty"`
	PostDataBase64   string            `json:"post_data_base64,omitempty"`
	PostDataIsBinary bool              `json:"post_data_is_binary,omitempty"`

	// AIContext is opaque downstream enrichment; nil until the enrichment
	// stage runs, and nil afterwards for events that could not be classified.
	AIContext *AIContext `json:"ai_context,omitempty"`
}

// AIContext is the enrichment attached to an event by the classifier.
type AIContext struct {
	Purpose       string `json:"purpose"`
	Category      string `json:"category"` // read|write|auth|analytics|other
	UsefulForTool bool   `json:"useful_for_tool"`
}

// -- Session Schemas --

// SameSite is the canonical cookie SameSite attribute. Raw values coming out
// of the browser must pass through sessionstore.NormalizeSameSite before any
// consumer reads them.
type SameSite string

const (
	SameSiteStrict SameSite = "Strict"
	SameSiteLax    SameSite = "Lax"
	SameSiteNone   SameSite = "None"
)

// Cookie mirrors the browser storage-state cookie document. The URL field is
// populated by some producers but must be stripped before driver-level
// injection; drivers reject cookies carrying both URL and Domain.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	URL      string  `json:"url,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// SessionState is the persisted cookie jar for an authenticated browsing
// context. Written once after a successful login, read on every later start.
type SessionState struct {
	Cookies []Cookie `json:"cookies"`
}

// CsrfCookieName is the cookie whose value doubles as the CSRF token required
// in the body of state-changing replayed requests.
const CsrfCookieName = "dsc"
