package models

import "time"

// Message represents a transport message flowing through the pipeline
type Message struct {
	ID        string            `json:"id"`
	Key       string            `json:"key"`
	Value     []byte            `json:"value"`
	Headers   map[string]string `json:"headers"`
	Timestamp time.Time         `json:"timestamp"`
}

// Clone returns a copy of the message with its own header map.
// Value is shared; nothing in the pipeline writes to a message body.
func (m *Message) Clone() *Message {
	clone := *m
	clone.Headers = make(map[string]string, len(m.Headers)+10)
	for k, v := range m.Headers {
		clone.Headers[k] = v
	}
	return &clone
}

// Transport header constants
const (
	HeaderMessageID     = "message-id"
	HeaderOriginalTopic = "original-topic"
)

// Failure header constants written by the failure forwarder
const (
	HeaderExceptionReason     = "ExceptionInfo.Reason"
	HeaderExceptionType       = "ExceptionInfo.ExceptionType"
	HeaderInnerExceptionType  = "ExceptionInfo.InnerExceptionType"
	HeaderExceptionHelpLink   = "ExceptionInfo.HelpLink"
	HeaderExceptionMessage    = "ExceptionInfo.Message"
	HeaderExceptionSource     = "ExceptionInfo.Source"
	HeaderExceptionStackTrace = "ExceptionInfo.StackTrace"
	HeaderFailedQ             = "FailedQ"
	HeaderTimeOfFailure       = "TimeOfFailure"
)
