package gate

import "net/http"

// State is the position of one protected request in its lifecycle
type State int

const (
	StateInit State = iota
	StateTokenReady
	StateSent
	StateSuccess
	StateAuthFailed
	StateOtherFailed
	StateRefreshing
	StateRetrySent
	StateTerminalFailed
)

var stateNames = map[State]string{
	StateInit:           "INIT",
	StateTokenReady:     "TOKEN_READY",
	StateSent:           "SENT",
	StateSuccess:        "SUCCESS",
	StateAuthFailed:     "AUTH_FAILED",
	StateOtherFailed:    "OTHER_FAILED",
	StateRefreshing:     "REFRESHING",
	StateRetrySent:      "RETRY_SENT",
	StateTerminalFailed: "TERMINAL_FAILED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Final reports whether no further transition can follow
func (s State) Final() bool {
	return s == StateSuccess || s == StateOtherFailed || s == StateTerminalFailed
}

// Classification is all the gate needs to know about a response
type Classification int

const (
	ClassSuccess Classification = iota
	// ClassAuthFailure means the token was not accepted
	ClassAuthFailure
	// ClassForbidden means the token was accepted but lacks rights
	ClassForbidden
	ClassOtherFailure
)

func (c Classification) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassAuthFailure:
		return "auth_failure"
	case ClassForbidden:
		return "forbidden"
	default:
		return "other_failure"
	}
}

// Classify maps an HTTP status code to a Classification
func Classify(status int) Classification {
	switch {
	case status >= 200 && status < 400:
		return ClassSuccess
	case status == http.StatusUnauthorized:
		return ClassAuthFailure
	case status == http.StatusForbidden:
		return ClassForbidden
	default:
		return ClassOtherFailure
	}
}
