package rabbitmq

import (
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

const retryHeader = "x-retries"

type TurnMessage struct {
	JobID string `json:"job_id"`
}

var ErrEmptyJobID = errors.New("rabbitmq: message without job_id")

func DecodeTurn(body []byte) (TurnMessage, error) {
	var m TurnMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return TurnMessage{}, err
	}
	if m.JobID == "" {
		return TurnMessage{}, ErrEmptyJobID
	}
	return m, nil
}

// Attempts reports how many times a delivery went through the retry queue.
func Attempts(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
