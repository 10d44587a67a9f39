// Package status defines the closed set of HTTP status codes the invocation
// engine recognizes, each with its canonical reason phrase and family.
package status

import "strconv"

// Family groups status codes by their hundreds digit.
type Family int

// Status code families.
const (
	FamilyOther Family = iota
	FamilyInformational
	FamilySuccessful
	FamilyRedirection
	FamilyClientError
	FamilyServerError
)

var familyNames = map[Family]string{
	FamilyOther:         "other",
	FamilyInformational: "informational",
	FamilySuccessful:    "successful",
	FamilyRedirection:   "redirection",
	FamilyClientError:   "client_error",
	FamilyServerError:   "server_error",
}

func (f Family) String() string {
	if s, ok := familyNames[f]; ok {
		return s
	}
	return familyNames[FamilyOther]
}

// FamilyOf returns the family for a numeric status code. Codes outside
// 100-599 map to FamilyOther.
func FamilyOf(code int) Family {
	switch code / 100 {
	case 1:
		return FamilyInformational
	case 2:
		return FamilySuccessful
	case 3:
		return FamilyRedirection
	case 4:
		return FamilyClientError
	case 5:
		return FamilyServerError
	default:
		return FamilyOther
	}
}

// Code is a known HTTP status code. Only the constants below are valid values;
// use FromCode to convert an arbitrary integer.
type Code int

// Known status codes.
const (
	Continue           Code = 100
	SwitchingProtocols Code = 101
	Processing         Code = 102
	EarlyHints         Code = 103

	OK                          Code = 200
	Created                     Code = 201
	Accepted                    Code = 202
	NonAuthoritativeInformation Code = 203
	NoContent                   Code = 204
	ResetContent                Code = 205
	PartialContent              Code = 206
	MultiStatus                 Code = 207
	AlreadyReported             Code = 208
	IMUsed                      Code = 226

	MultipleChoices   Code = 300
	MovedPermanently  Code = 301
	Found             Code = 302
	SeeOther          Code = 303
	NotModified       Code = 304
	UseProxy          Code = 305
	SwitchProxy       Code = 306
	TemporaryRedirect Code = 307
	PermanentRedirect Code = 308

	BadRequest                   Code = 400
	Unauthorized                 Code = 401
	PaymentRequired              Code = 402
	Forbidden                    Code = 403
	NotFound                     Code = 404
	MethodNotAllowed             Code = 405
	NotAcceptable                Code = 406
	ProxyAuthenticationRequired  Code = 407
	RequestTimeout               Code = 408
	Conflict                     Code = 409
	Gone                         Code = 410
	LengthRequired               Code = 411
	PreconditionFailed           Code = 412
	RequestEntityTooLarge        Code = 413
	RequestURITooLong            Code = 414
	UnsupportedMediaType         Code = 415
	RequestedRangeNotSatisfiable Code = 416
	ExpectationFailed            Code = 417
	MisdirectedRequest           Code = 421
	UnprocessableEntity          Code = 422
	Locked                       Code = 423
	FailedDependency             Code = 424
	TooEarly                     Code = 425
	UpgradeRequired              Code = 426
	PreconditionRequired         Code = 428
	TooManyRequests              Code = 429
	RequestHeaderFieldsTooLarge  Code = 431
	UnavailableForLegalReasons   Code = 451

	InternalServerError           Code = 500
	NotImplemented                Code = 501
	BadGateway                    Code = 502
	ServiceUnavailable            Code = 503
	GatewayTimeout                Code = 504
	HTTPVersionNotSupported       Code = 505
	VariantAlsoNegotiates         Code = 506
	InsufficientStorage           Code = 507
	LoopDetected                  Code = 508
	BandwidthLimitExceeded        Code = 509
	NotExtended                   Code = 510
	NetworkAuthenticationRequired Code = 511
)

var reasonPhrases = map[Code]string{
	Continue:           "Continue",
	SwitchingProtocols: "Switching Protocols",
	Processing:         "Processing",
	EarlyHints:         "Early Hints",

	OK:                          "OK",
	Created:                     "Created",
	Accepted:                    "Accepted",
	NonAuthoritativeInformation: "Non-Authoritative Information",
	NoContent:                   "No Content",
	ResetContent:                "Reset Content",
	PartialContent:              "Partial Content",
	MultiStatus:                 "Multi Status",
	AlreadyReported:             "Already Reported",
	IMUsed:                      "IM Used",

	MultipleChoices:   "Multiple Choices",
	MovedPermanently:  "Moved Permanently",
	Found:             "Found",
	SeeOther:          "See Other",
	NotModified:       "Not Modified",
	UseProxy:          "Use Proxy",
	SwitchProxy:       "Switch Proxy",
	TemporaryRedirect: "Temporary Redirect",
	PermanentRedirect: "Permanent Redirect",

	BadRequest:                   "Bad Request",
	Unauthorized:                 "Unauthorized",
	PaymentRequired:              "Payment Required",
	Forbidden:                    "Forbidden",
	NotFound:                     "Not Found",
	MethodNotAllowed:             "Method Not Allowed",
	NotAcceptable:                "Not Acceptable",
	ProxyAuthenticationRequired:  "Proxy Authentication Required",
	RequestTimeout:               "Request Timeout",
	Conflict:                     "Conflict",
	Gone:                         "Gone",
	LengthRequired:               "Length Required",
	PreconditionFailed:           "Precondition Failed",
	RequestEntityTooLarge:        "Request Entity Too Large",
	RequestURITooLong:            "Request-URI Too Long",
	UnsupportedMediaType:         "Unsupported Media Type",
	RequestedRangeNotSatisfiable: "Requested Range Not Satisfiable",
	ExpectationFailed:            "Expectation Failed",
	MisdirectedRequest:           "Misdirected Request",
	UnprocessableEntity:          "Unprocessable Entity",
	Locked:                       "Locked",
	FailedDependency:             "Failed Dependency",
	TooEarly:                     "Too Early",
	UpgradeRequired:              "Upgrade Required",
	PreconditionRequired:         "Precondition Required",
	TooManyRequests:              "Too Many Requests",
	RequestHeaderFieldsTooLarge:  "Request Header Fields Too Large",
	UnavailableForLegalReasons:   "Unavailable For Legal Reasons",

	InternalServerError:           "Internal Server Error",
	NotImplemented:                "Not Implemented",
	BadGateway:                    "Bad Gateway",
	ServiceUnavailable:            "Service Unavailable",
	GatewayTimeout:                "Gateway Timeout",
	HTTPVersionNotSupported:       "HTTP Version Not Supported",
	VariantAlsoNegotiates:         "Variant Also Negotiates",
	InsufficientStorage:           "Insufficient Storage",
	LoopDetected:                  "Loop Detected",
	BandwidthLimitExceeded:        "Bandwidth Limit Exceeded",
	NotExtended:                   "Not Extended",
	NetworkAuthenticationRequired: "Network Authentication Required",
}

// FromCode returns the known Code for a numeric status code, and false if
// the code is not part of the known set.
func FromCode(code int) (Code, bool) {
	c := Code(code)
	if _, ok := reasonPhrases[c]; !ok {
		return 0, false
	}
	return c, true
}

// Int returns the numeric status code.
func (c Code) Int() int {
	return int(c)
}

// ReasonPhrase returns the canonical reason phrase, or an empty string for a
// value outside the known set.
func (c Code) ReasonPhrase() string {
	return reasonPhrases[c]
}

// Family returns the family of the code.
func (c Code) Family() Family {
	return FamilyOf(int(c))
}

// String renders the code as "404 Not Found".
func (c Code) String() string {
	if p, ok := reasonPhrases[c]; ok {
		return strconv.Itoa(int(c)) + " " + p
	}
	return strconv.Itoa(int(c))
}
