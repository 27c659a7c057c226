package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MarshalJSON encodes the message in its externally tagged form.
func (m ClientMessage) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case ClientNone, ClientGetUsernames:
		return json.Marshal(m.Kind.String())
	case ClientTextTo:
		return json.Marshal(map[string][2]string{m.Kind.String(): {m.Recipient, m.Text}})
	case ClientSetUsername:
		return json.Marshal(map[string]string{m.Kind.String(): m.Name})
	default:
		return nil, fmt.Errorf("%w: unknown client kind %d", ErrMalformed, int(m.Kind))
	}
}

// UnmarshalJSON decodes an externally tagged client message.
func (m *ClientMessage) UnmarshalJSON(data []byte) error {
	tag, payload, err := splitTagged(data)
	if err != nil {
		return err
	}

	switch tag {
	case "None":
		if err := decodeUnit(payload); err != nil {
			return fmt.Errorf("%w: None: %v", ErrMalformed, err)
		}
		*m = ClientMessage{Kind: ClientNone}
	case "GetUsernames":
		if err := decodeUnit(payload); err != nil {
			return fmt.Errorf("%w: GetUsernames: %v", ErrMalformed, err)
		}
		*m = GetUsernames()
	case "TextTo":
		var pair [2]string
		if err := decodeTuple(payload, &pair); err != nil {
			return fmt.Errorf("%w: TextTo: %v", ErrMalformed, err)
		}
		*m = TextTo(pair[0], pair[1])
	case "SetUsername":
		name, err := decodeString(payload)
		if err != nil {
			return fmt.Errorf("%w: SetUsername: %v", ErrMalformed, err)
		}
		*m = SetUsername(name)
	default:
		return fmt.Errorf("%w: unknown variant %q", ErrMalformed, tag)
	}
	return nil
}

// MarshalJSON encodes the message in its externally tagged form.
func (m ServerMessage) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case ServerNone:
		return json.Marshal(m.Kind.String())
	case ServerTextFrom:
		return json.Marshal(map[string][2]string{m.Kind.String(): {m.Sender, m.Text}})
	case ServerUsernames:
		names := m.Usernames
		if names == nil {
			names = []string{}
		}
		return json.Marshal(map[string][]string{m.Kind.String(): names})
	case ServerResponse:
		return json.Marshal(map[string]map[string]string{
			m.Kind.String(): {m.Result.tag(): m.Result.Message},
		})
	default:
		return nil, fmt.Errorf("%w: unknown server kind %d", ErrMalformed, int(m.Kind))
	}
}

// UnmarshalJSON decodes an externally tagged server message.
func (m *ServerMessage) UnmarshalJSON(data []byte) error {
	tag, payload, err := splitTagged(data)
	if err != nil {
		return err
	}

	switch tag {
	case "None":
		if err := decodeUnit(payload); err != nil {
			return fmt.Errorf("%w: None: %v", ErrMalformed, err)
		}
		*m = ServerMessage{Kind: ServerNone}
	case "TextFrom":
		var pair [2]string
		if err := decodeTuple(payload, &pair); err != nil {
			return fmt.Errorf("%w: TextFrom: %v", ErrMalformed, err)
		}
		*m = TextFrom(pair[0], pair[1])
	case "Usernames":
		names, err := decodeStrings(payload)
		if err != nil {
			return fmt.Errorf("%w: Usernames: %v", ErrMalformed, err)
		}
		*m = Usernames(names)
	case "Response":
		var result map[string]*string
		if err := decodePayload(payload, &result); err != nil {
			return fmt.Errorf("%w: Response: %v", ErrMalformed, err)
		}
		if len(result) != 1 {
			return fmt.Errorf("%w: Response must hold exactly one of Ok or Err", ErrMalformed)
		}
		if msg, ok := result["Ok"]; ok && msg != nil {
			*m = Ok(*msg)
		} else if msg, ok := result["Err"]; ok && msg != nil {
			*m = Err(*msg)
		} else {
			return fmt.Errorf("%w: Response must hold an Ok or Err string", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown variant %q", ErrMalformed, tag)
	}
	return nil
}

func (r Result) tag() string {
	if r.OK {
		return "Ok"
	}
	return "Err"
}

// DecodeClient parses one client frame.
func DecodeClient(frame []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		if errors.Is(err, ErrMalformed) {
			return ClientMessage{}, err
		}
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

// DecodeServer parses one server frame.
func DecodeServer(frame []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		if errors.Is(err, ErrMalformed) {
			return ServerMessage{}, err
		}
		return ServerMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

// splitTagged separates a tagged value into its variant name and payload.
// Unit variants have a nil payload.
func splitTagged(data []byte) (string, json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: empty frame", ErrMalformed)
	}

	if data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return tag, nil, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(obj) != 1 {
		return "", nil, fmt.Errorf("%w: expected exactly one variant, got %d", ErrMalformed, len(obj))
	}
	for tag, payload := range obj {
		return tag, payload, nil
	}
	return "", nil, fmt.Errorf("%w: empty object", ErrMalformed)
}

var jsonNull = []byte("null")

// decodeUnit accepts the object form of a unit variant only with a null
// payload.
func decodeUnit(payload json.RawMessage) error {
	if payload == nil || bytes.Equal(bytes.TrimSpace(payload), jsonNull) {
		return nil
	}
	return errors.New("unexpected payload")
}

func decodePayload(payload json.RawMessage, v any) error {
	if payload == nil {
		return errors.New("missing payload")
	}
	return json.Unmarshal(payload, v)
}

// decodeString rejects null, which encoding/json would turn into "".
func decodeString(payload json.RawMessage) (string, error) {
	var s *string
	if err := decodePayload(payload, &s); err != nil {
		return "", err
	}
	if s == nil {
		return "", errors.New("expected string, got null")
	}
	return *s, nil
}

func decodeStrings(payload json.RawMessage) ([]string, error) {
	var items []*string
	if err := decodePayload(payload, &items); err != nil {
		return nil, err
	}
	if items == nil {
		return nil, errors.New("expected array, got null")
	}
	out := make([]string, len(items))
	for i, item := range items {
		if item == nil {
			return nil, fmt.Errorf("element %d is null", i)
		}
		out[i] = *item
	}
	return out, nil
}

func decodeTuple(payload json.RawMessage, pair *[2]string) error {
	items, err := decodeStrings(payload)
	if err != nil {
		return err
	}
	if len(items) != 2 {
		return fmt.Errorf("expected 2 fields, got %d", len(items))
	}
	pair[0], pair[1] = items[0], items[1]
	return nil
}
