package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Contest lifecycle errors
// 12000-12999: Registration errors
// 13000-13999: Submission & Judge errors
// 14000-14999: Ranking & Leaderboard errors
// 15000-15999: Realtime gateway errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	RecordNotFound    ErrorCode = 10101
	TransactionFailed ErrorCode = 10102

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidValue       ErrorCode = 10301
	RequiredFieldEmpty ErrorCode = 10302

	// ========== Contest Lifecycle Errors (11000-11999) ==========

	// Contest basic (11000-11099)
	ContestNotFound     ErrorCode = 11000
	ContestNotLive      ErrorCode = 11001
	ContestEnded        ErrorCode = 11002
	ContestCancelled    ErrorCode = 11003
	ContestCreateFailed ErrorCode = 11004

	// Transitions (11100-11199)
	InvalidTransition    ErrorCode = 11100
	ContestHasNoProblems ErrorCode = 11101
	ContestWindowPassed  ErrorCode = 11102
	TransitionSideEffect ErrorCode = 11103

	// ========== Registration Errors (12000-12999) ==========

	RegistrationNotFound ErrorCode = 12000
	LateJoinClosed       ErrorCode = 12001
	Disqualified         ErrorCode = 12002
	AlreadyRegistered    ErrorCode = 12003
	RegistrationFailed   ErrorCode = 12004

	// ========== Submission & Judge Errors (13000-13999) ==========

	// Submission intake (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	SubmitTooFrequently    ErrorCode = 13004

	// Judging (13100-13199)
	JudgeQueueFull         ErrorCode = 13100
	JudgeSystemError       ErrorCode = 13101
	ExecServiceUnavailable ErrorCode = 13102
	ProblemNotFound        ErrorCode = 13103
	StdinTooLarge          ErrorCode = 13104

	// ========== Ranking & Leaderboard Errors (14000-14999) ==========

	RankingNotAvailable ErrorCode = 14000
	RankingFrozen       ErrorCode = 14001
	BoardNotInitialized ErrorCode = 14002

	// ========== Realtime Gateway Errors (15000-15999) ==========

	ConnectionClosed   ErrorCode = 15000
	NotJoined          ErrorCode = 15001
	UnknownMessageType ErrorCode = 15002
	AuthTokenInvalid   ErrorCode = 15003
	RoomNotFound       ErrorCode = 15004
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:     "Database operation failed",
	RecordNotFound:    "Record not found in database",
	TransactionFailed: "Database transaction failed",

	// Cache
	CacheError: "Cache operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Contest
	ContestNotFound:     "Contest not found",
	ContestNotLive:      "Contest is not accepting submissions",
	ContestEnded:        "Contest has ended",
	ContestCancelled:    "Contest has been cancelled",
	ContestCreateFailed: "Failed to create contest",

	// Transitions
	InvalidTransition:    "Contest status transition is not allowed",
	ContestHasNoProblems: "Contest has no problems",
	ContestWindowPassed:  "Contest end time is already in the past",
	TransitionSideEffect: "Contest transition side effect failed",

	// Registration
	RegistrationNotFound: "Registration not found",
	LateJoinClosed:       "Late join window has closed",
	Disqualified:         "Participant has been disqualified",
	AlreadyRegistered:    "Already registered for this contest",
	RegistrationFailed:   "Registration failed",

	// Submission
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	SubmitTooFrequently:    "Submitting too frequently, please wait",

	// Judging
	JudgeQueueFull:         "Judge queue is full, please try again later",
	JudgeSystemError:       "Judge system error",
	ExecServiceUnavailable: "Execution service unavailable",
	ProblemNotFound:        "Problem not found",
	StdinTooLarge:          "Test input is too large",

	// Ranking
	RankingNotAvailable: "Ranking is not available",
	RankingFrozen:       "Ranking is frozen",
	BoardNotInitialized: "Leaderboard is not initialized",

	// Gateway
	ConnectionClosed:   "Connection is closed",
	NotJoined:          "Not joined to a contest room",
	UnknownMessageType: "Unknown message type",
	AuthTokenInvalid:   "Invalid auth token",
	RoomNotFound:       "Contest room not found",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == AuthTokenInvalid:
		return 401
	case c == Forbidden, c == Disqualified:
		return 403
	case c == NotFound, c == RecordNotFound, c == ContestNotFound,
		c == RegistrationNotFound, c == SubmissionNotFound, c == ProblemNotFound:
		return 404
	case c == InvalidTransition, c == ContestNotLive, c == ContestEnded,
		c == ContestCancelled, c == LateJoinClosed, c == AlreadyRegistered:
		return 409
	case c == TooManyRequests, c == SubmitTooFrequently:
		return 429
	case c == ServiceUnavailable, c == ExecServiceUnavailable, c == JudgeQueueFull:
		return 503
	case c >= 10300 && c < 10400:
		return 400
	case c == InvalidParams, c == CodeTooLarge, c == LanguageNotSupported,
		c == ContestHasNoProblems, c == ContestWindowPassed, c == UnknownMessageType:
		return 400
	default:
		return 500
	}
}
