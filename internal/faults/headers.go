package faults

import (
	"time"

	"go-faults/pkg/models"
)

// Reason values written to the ExceptionInfo.Reason header
const (
	ReasonSerializationFailed = "SerializationFailed"
	ReasonProcessingFailed    = "ProcessingFailed"
)

// Annotate returns a copy of msg carrying the failure headers. msg itself is not modified.
func Annotate(msg *models.Message, failure FailureContext, reason string, failedQ Address, at time.Time) *models.Message {
	if msg == nil {
		msg = &models.Message{}
	}
	annotated := msg.Clone()
	h := annotated.Headers

	h[models.HeaderExceptionReason] = reason
	h[models.HeaderExceptionType] = failure.Type
	if failure.HasCause() {
		h[models.HeaderInnerExceptionType] = failure.InnerType
	}
	if failure.HelpLink != "" {
		h[models.HeaderExceptionHelpLink] = failure.HelpLink
	}
	h[models.HeaderExceptionMessage] = failure.Message
	h[models.HeaderExceptionSource] = failure.Source
	h[models.HeaderExceptionStackTrace] = failure.StackTrace
	h[models.HeaderFailedQ] = failedQ.String()
	h[models.HeaderTimeOfFailure] = ToWireFormattedString(at)

	return annotated
}
