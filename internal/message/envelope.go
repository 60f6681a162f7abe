package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is a routed message together with its addressing.
type Envelope struct {
	Sender    string
	Recipient string
	Message   Message
	RoutedAt  time.Time
}

type wireEnvelope struct {
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RoutedAt  time.Time       `json:"routed_at"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Message == nil {
		return nil, fmt.Errorf("marshal envelope: nil message")
	}
	payload, err := json.Marshal(e.Message)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Message.Type(), err)
	}
	return json.Marshal(wireEnvelope{
		Sender:    e.Sender,
		Recipient: e.Recipient,
		Type:      e.Message.Type(),
		Payload:   payload,
		RoutedAt:  e.RoutedAt,
	})
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	msg, err := Decode(w.Type, w.Payload)
	if err != nil {
		return err
	}
	e.Sender = w.Sender
	e.Recipient = w.Recipient
	e.Message = msg
	e.RoutedAt = w.RoutedAt
	return nil
}

// Decode builds the variant named by t from its JSON payload.
func Decode(t Type, payload []byte) (Message, error) {
	var (
		msg Message
		err error
	)
	switch t {
	case TypeGoal:
		msg, err = decodeAs[Goal](payload)
	case TypeCodingTask:
		msg, err = decodeAs[CodingTask](payload)
	case TypeTaskComplete:
		msg, err = decodeAs[TaskComplete](payload)
	case TypeEvaluationRequest:
		msg, err = decodeAs[EvaluationRequest](payload)
	case TypeEvaluationResult:
		msg, err = decodeAs[EvaluationResult](payload)
	case TypeSearchRequest:
		msg, err = decodeAs[SearchRequest](payload)
	case TypeSearchResult:
		msg, err = decodeAs[SearchResult](payload)
	case TypeAPIRequest:
		msg, err = decodeAs[APIRequest](payload)
	case TypeAPIResult:
		msg, err = decodeAs[APIResult](payload)
	default:
		return nil, fmt.Errorf("unknown message type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return msg, nil
}

func decodeAs[T Message](payload []byte) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	err := json.Unmarshal(payload, &v)
	return v, err
}
