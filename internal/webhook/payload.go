package webhook

import (
	"encoding/json"

	"leadflow_backend/platform/apperr"
)

// Ingestion source names. They key signature secrets, idempotency
// namespaces and external_events rows.
const (
	SourceMeta      = "meta"
	SourceMessaging = "messaging"
	SourcePayments  = "payments"
)

// metaPayload is the leadgen change notification shape: entries per page,
// each carrying one or more leadgen changes.
type metaPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"` // page id
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				LeadgenID  string `json:"leadgen_id"`
				CampaignID string `json:"campaign_id"`
				FieldData  []struct {
					Name   string   `json:"name"`
					Values []string `json:"values"`
				} `json:"field_data"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// MetaLeadEvent is one normalized leadgen occurrence extracted from a Meta
// notification body.
type MetaLeadEvent struct {
	ExternalID string
	PageID     string
	CampaignID string
	Phone      string
	Name       string
	Email      *string
}

// ParseMetaPayload flattens a Meta notification into lead events. A verified
// body that cannot be interpreted is an unprocessable error, never a parse
// panic or a silent drop.
func ParseMetaPayload(body []byte) ([]MetaLeadEvent, error) {
	var p metaPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, apperr.Unprocessable("malformed meta payload")
	}

	var out []MetaLeadEvent
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "leadgen" || change.Value.LeadgenID == "" {
				continue
			}
			event := MetaLeadEvent{
				ExternalID: change.Value.LeadgenID,
				PageID:     entry.ID,
				CampaignID: change.Value.CampaignID,
			}
			for _, field := range change.Value.FieldData {
				if len(field.Values) == 0 {
					continue
				}
				value := field.Values[0]
				switch field.Name {
				case "phone_number", "phone":
					event.Phone = value
				case "full_name", "name":
					event.Name = value
				case "email":
					email := value
					event.Email = &email
				}
			}
			out = append(out, event)
		}
	}
	if len(out) == 0 {
		return nil, apperr.Unprocessable("meta payload carries no leadgen events")
	}
	return out, nil
}

// messagingPayload is the conversation event shape: the business number the
// message was sent to, plus the inbound messages.
type messagingPayload struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	Messages           []struct {
		ID   string `json:"id"`
		From string `json:"from"`
		Type string `json:"type"`
		Text struct {
			Body string `json:"body"`
		} `json:"text"`
	} `json:"messages"`
}

// InboundMessage is one normalized conversation turn from the messaging
// provider.
type InboundMessage struct {
	ExternalID   string
	ChannelPhone string
	FromPhone    string
	Body         string
}

// ParseMessagingPayload extracts the text messages from a conversation
// event. Non-text message types are skipped.
func ParseMessagingPayload(body []byte) ([]InboundMessage, error) {
	var p messagingPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, apperr.Unprocessable("malformed messaging payload")
	}
	if p.DisplayPhoneNumber == "" {
		return nil, apperr.Unprocessable("messaging payload has no channel number")
	}

	var out []InboundMessage
	for _, m := range p.Messages {
		if m.Type != "" && m.Type != "text" {
			continue
		}
		if m.ID == "" || m.From == "" || m.Text.Body == "" {
			continue
		}
		out = append(out, InboundMessage{
			ExternalID:   m.ID,
			ChannelPhone: p.DisplayPhoneNumber,
			FromPhone:    m.From,
			Body:         m.Text.Body,
		})
	}
	if len(out) == 0 {
		return nil, apperr.Unprocessable("messaging payload carries no text messages")
	}
	return out, nil
}

// PaymentEvent is one verified billing notification.
type PaymentEvent struct {
	ExternalID string `json:"id"`
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id"`
	Credits    int64  `json:"credits"`
	Reference  string `json:"reference"`
}

// Payment event types the ledger reacts to.
const (
	PaymentSucceeded = "payment.succeeded"
	PaymentRefunded  = "payment.refunded"
)

// ParsePaymentPayload validates the shape of a payment notification.
func ParsePaymentPayload(body []byte) (*PaymentEvent, error) {
	var e PaymentEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, apperr.Unprocessable("malformed payment payload")
	}
	if e.ExternalID == "" || e.TenantID == "" {
		return nil, apperr.Unprocessable("payment payload missing id or tenant")
	}
	switch e.Type {
	case PaymentSucceeded, PaymentRefunded:
	default:
		return nil, apperr.Unprocessable("unknown payment event type: " + e.Type)
	}
	if e.Credits <= 0 {
		return nil, apperr.Unprocessable("payment credits must be positive")
	}
	return &e, nil
}
