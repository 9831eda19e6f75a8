package domain

import (
	"fmt"
	"strings"
)

// ModerationAction is the verb carried by a staff button.
type ModerationAction string

const (
	ActionComplete ModerationAction = "complete"
	ActionApprove  ModerationAction = "approve"
	ActionReject   ModerationAction = "reject"
)

// Outcome maps an action to the status it resolves a request into.
func (a ModerationAction) Outcome() RequestStatus {
	switch a {
	case ActionComplete:
		return RequestStatusCompleted
	case ActionApprove:
		return RequestStatusApproved
	case ActionReject:
		return RequestStatusRejected
	}
	return ""
}

// ModerationCommand is decoded callback data "<kind>:<action>:<requestID>".
type ModerationCommand struct {
	Kind      RequestKind
	Action    ModerationAction
	RequestID string
}

// ParseModerationCommand decodes callback data. Whether the kind/action pair
// is supported is decided by the dispatcher.
func ParseModerationCommand(data string) (ModerationCommand, error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ModerationCommand{}, fmt.Errorf("malformed callback data %q", data)
	}
	return ModerationCommand{
		Kind:      RequestKind(parts[0]),
		Action:    ModerationAction(parts[1]),
		RequestID: parts[2],
	}, nil
}

// CallbackData encodes the command for a chat button.
func (c ModerationCommand) CallbackData() string {
	return string(c.Kind) + ":" + string(c.Action) + ":" + c.RequestID
}

// Route is the dispatcher table key.
func (c ModerationCommand) Route() string {
	return string(c.Kind) + ":" + string(c.Action)
}

// BuildCallbackGuardKey scopes a double-press guard to one button on one message.
func BuildCallbackGuardKey(ref MessageRef, cmd ModerationCommand) string {
	return fmt.Sprintf("%d:%d:%s", ref.ChatID, ref.MessageID, cmd.Route())
}
