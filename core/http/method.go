package http

// Method is an HTTP request method. The zero value is not a valid method.
type Method uint8

// Supported request methods
const (
	MethodUnknown Method = iota
	GET
	HEAD
	POST
	PUT
	DELETE
	CONNECT
	OPTIONS
	PATCH
	TRACE
)

var methodNames = [...]string{
	MethodUnknown: "",
	GET:           "GET",
	HEAD:          "HEAD",
	POST:          "POST",
	PUT:           "PUT",
	DELETE:        "DELETE",
	CONNECT:       "CONNECT",
	OPTIONS:       "OPTIONS",
	PATCH:         "PATCH",
	TRACE:         "TRACE",
}

// ParseMethod matches a method token case-sensitively.
// Unrecognized tokens return MethodUnknown.
func ParseMethod(token string) Method {
	// Length first to keep the common cases to one comparison
	switch len(token) {
	case 3:
		switch token {
		case "GET":
			return GET
		case "PUT":
			return PUT
		}
	case 4:
		switch token {
		case "POST":
			return POST
		case "HEAD":
			return HEAD
		}
	case 5:
		switch token {
		case "PATCH":
			return PATCH
		case "TRACE":
			return TRACE
		}
	case 6:
		if token == "DELETE" {
			return DELETE
		}
	case 7:
		switch token {
		case "OPTIONS":
			return OPTIONS
		case "CONNECT":
			return CONNECT
		}
	}
	return MethodUnknown
}

// String returns the wire token for the method
func (m Method) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return ""
}

// Valid reports whether m is one of the supported methods
func (m Method) Valid() bool {
	return m > MethodUnknown && m <= TRACE
}
