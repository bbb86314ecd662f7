package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gymstudio.app/internal/auth"
	"gymstudio.app/internal/obs"
)

// Events emitted by reviewer and coach actions.
const (
	EventInvitationCreated   = "invitation.created"
	EventInvitationCancelled = "invitation.cancelled"
	EventInvitationResent    = "invitation.resent"
	EventOnboardingSubmitted = "onboarding.submitted"
	EventCoachApproved       = "coach.approved"
	EventCoachRejected       = "coach.rejected"
	EventCorrections         = "coach.corrections_requested"
	EventCoachDeleted        = "coach.deleted"
	EventProfileUpdated      = "coach.profile_updated"
	EventDocumentReviewed    = "document.reviewed"
	EventDocumentReuploaded  = "document.reuploaded"
	EventCertReviewed        = "certification.reviewed"
	EventContractIssued      = "contract.issued"
	EventContractSigned      = "contract.signed"
	EventLogin               = "auth.login"
)

// LogEvent writes an audit log entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := obs.RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		entry["actor_id"] = userID
		if roles := auth.RolesFromContext(ctx); len(roles) > 0 {
			entry["actor_roles"] = roles
		}
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// Record is LogEvent for callers that cannot act on a failure; marshal errors are logged instead.
func Record(ctx context.Context, event string, fields map[string]any) {
	if err := LogEvent(ctx, event, fields); err != nil {
		obs.Error(ctx, "audit log failed", err, map[string]any{"event": event})
	}
}
