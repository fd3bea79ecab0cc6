package sdk

import "context"

// Miniprogram states a subscribe message can open
const (
	// StateDeveloper opens the develop version
	StateDeveloper = "developer"
	// StateTrial opens the trial version
	StateTrial = "trial"
	// StateFormal opens the released version
	StateFormal = "formal"
)

// SubscribeMessage is one subscribe message delivery
type SubscribeMessage struct {
	// ToUser is the recipient
	ToUser OpenID `json:"touser"`
	// TemplateID is the approved message template
	TemplateID string `json:"template_id"`
	// Page is the page opened when the user taps the message; empty
	// means no page
	Page string `json:"page,omitempty"`
	// Data fills the template placeholders, keyed by placeholder name
	Data map[string]SubscribeValue `json:"data"`
	// MiniprogramState selects which version the message opens
	// (StateDeveloper, StateTrial or StateFormal). Empty means formal.
	MiniprogramState string `json:"miniprogram_state,omitempty"`
	// Lang is the message language; empty means zh_CN
	Lang string `json:"lang,omitempty"`
}

// SubscribeValue is one template placeholder value
type SubscribeValue struct {
	Value string `json:"value"`
}

// SendSubscribeMessage delivers a subscribe message to a user who
// granted the one-time subscription. Each grant covers exactly one
// delivery; sending without a grant fails with an application error.
func (c *client) SendSubscribeMessage(ctx context.Context, msg *SubscribeMessage) error {
	const op = "POST /cgi-bin/message/subscribe/send"

	if msg == nil {
		return NewError(ErrorTypeConfig, op, "message is required")
	}
	if err := msg.ToUser.Validate(); err != nil {
		return err
	}
	if msg.TemplateID == "" {
		return NewError(ErrorTypeConfig, op, "template ID must not be empty")
	}
	if len(msg.Data) == 0 {
		return NewError(ErrorTypeConfig, op, "template data must not be empty")
	}

	return c.callJSON(ctx, "POST", "/cgi-bin/message/subscribe/send", msg, nil)
}
