package serialization

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
)

// emptyObject 负载缺省值
var emptyObject = json.RawMessage(`{}`)

// SerializationError 序列化错误
type SerializationError struct {
	Operation string
	Message   string
	Cause     error
}

// Error 实现error接口
func (e SerializationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s failed: %s (caused by: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// Unwrap 返回底层错误
func (e SerializationError) Unwrap() error {
	return e.Cause
}

// Envelope 协议报文信封，按 Type 区分 CALL / CALLRESULT / CALLERROR
type Envelope struct {
	Type      ocpp16.MessageType
	MessageID string

	// CALL
	Action ocpp16.Action

	// CALL 与 CALLRESULT
	Payload json.RawMessage

	// CALLERROR
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// EncodeCall 编码请求 [2, id, action, payload]，payload 为 nil 时编码为 {}
func EncodeCall(messageID string, action ocpp16.Action, payload interface{}) ([]byte, error) {
	raw, err := marshalPayload("EncodeCall", payload)
	if err != nil {
		return nil, err
	}
	return marshalFrame("EncodeCall", []interface{}{ocpp16.Call, messageID, action, raw})
}

// EncodeCallResult 编码响应 [3, id, payload]
func EncodeCallResult(messageID string, payload interface{}) ([]byte, error) {
	raw, err := marshalPayload("EncodeCallResult", payload)
	if err != nil {
		return nil, err
	}
	return marshalFrame("EncodeCallResult", []interface{}{ocpp16.CallResult, messageID, raw})
}

// EncodeCallError 编码错误 [4, id, code, description]，描述为空时省略该元素
func EncodeCallError(messageID string, code ocpp16.ErrorCode, description string) ([]byte, error) {
	frame := []interface{}{ocpp16.CallError, messageID, code}
	if description != "" {
		frame = append(frame, description)
	}
	return marshalFrame("EncodeCallError", frame)
}

// Encode 按信封类型编码
func Encode(env *Envelope) ([]byte, error) {
	switch env.Type {
	case ocpp16.Call:
		return EncodeCall(env.MessageID, env.Action, env.Payload)
	case ocpp16.CallResult:
		return EncodeCallResult(env.MessageID, env.Payload)
	case ocpp16.CallError:
		return EncodeCallError(env.MessageID, ocpp16.ErrorCode(env.ErrorCode), env.ErrorDescription)
	default:
		return nil, SerializationError{
			Operation: "Encode",
			Message:   fmt.Sprintf("invalid message type: %d", env.Type),
		}
	}
}

// Decode 解码一帧文本
// CALL 缺少负载时视为 {}，CALLERROR 的描述和详情可选
func Decode(data []byte) (*Envelope, error) {
	var message []json.RawMessage
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, SerializationError{
			Operation: "Decode",
			Message:   "failed to unmarshal JSON array",
			Cause:     err,
		}
	}
	if len(message) < 2 {
		return nil, SerializationError{
			Operation: "Decode",
			Message:   "message array too short",
		}
	}

	var msgType int
	if err := json.Unmarshal(message[0], &msgType); err != nil {
		return nil, SerializationError{
			Operation: "Decode",
			Message:   "failed to parse message type",
			Cause:     err,
		}
	}

	env := &Envelope{Type: ocpp16.MessageType(msgType)}
	if err := json.Unmarshal(message[1], &env.MessageID); err != nil {
		return nil, SerializationError{
			Operation: "Decode",
			Message:   "failed to parse message ID",
			Cause:     err,
		}
	}

	switch env.Type {
	case ocpp16.Call:
		if len(message) < 3 {
			return nil, SerializationError{
				Operation: "Decode",
				Message:   "call message must carry an action",
			}
		}
		var action string
		if err := json.Unmarshal(message[2], &action); err != nil {
			return nil, SerializationError{
				Operation: "Decode",
				Message:   "failed to parse action",
				Cause:     err,
			}
		}
		env.Action = ocpp16.Action(action)
		env.Payload = payloadAt(message, 3)

	case ocpp16.CallResult:
		env.Payload = payloadAt(message, 2)

	case ocpp16.CallError:
		if len(message) < 3 {
			return nil, SerializationError{
				Operation: "Decode",
				Message:   "call error message must carry an error code",
			}
		}
		if err := json.Unmarshal(message[2], &env.ErrorCode); err != nil {
			return nil, SerializationError{
				Operation: "Decode",
				Message:   "failed to parse error code",
				Cause:     err,
			}
		}
		if len(message) > 3 {
			if err := json.Unmarshal(message[3], &env.ErrorDescription); err != nil {
				return nil, SerializationError{
					Operation: "Decode",
					Message:   "failed to parse error description",
					Cause:     err,
				}
			}
		}
		if len(message) > 4 {
			env.ErrorDetails = message[4]
		}

	default:
		return nil, SerializationError{
			Operation: "Decode",
			Message:   fmt.Sprintf("invalid message type: %d", msgType),
		}
	}

	return env, nil
}

// DecodePayload 将负载解码到目标结构
func DecodePayload(payload json.RawMessage, target interface{}) error {
	if len(payload) == 0 {
		payload = emptyObject
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return SerializationError{
			Operation: "DecodePayload",
			Message:   "failed to unmarshal payload",
			Cause:     err,
		}
	}
	return nil
}

func payloadAt(message []json.RawMessage, index int) json.RawMessage {
	if len(message) <= index {
		return emptyObject
	}
	raw := message[index]
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return emptyObject
	}
	return raw
}

func marshalPayload(operation string, payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return emptyObject, nil
	case json.RawMessage:
		if len(p) == 0 {
			return emptyObject, nil
		}
		return p, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, SerializationError{
			Operation: operation,
			Message:   "failed to marshal payload",
			Cause:     err,
		}
	}
	return data, nil
}

func marshalFrame(operation string, frame []interface{}) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, SerializationError{
			Operation: operation,
			Message:   "failed to marshal JSON",
			Cause:     err,
		}
	}
	return data, nil
}
