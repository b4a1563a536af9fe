package workflow

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Checkpoint stores the serialized result of a finished workflow step,
// enabling crash recovery by replaying from the last checkpoint.
type Checkpoint struct {
	RunID     string    `json:"run_id"`
	StepName  string    `json:"step_name"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// stepRecord is the envelope persisted for every checkpoint. It is never
// empty when encoded, so a nil read always means "no checkpoint".
type stepRecord struct {
	Success bool   `msgpack:"s"`
	Data    []byte `msgpack:"d,omitempty"`
	Error   string `msgpack:"e,omitempty"`
}

func encodeResult[T any](res StepResult[T]) ([]byte, error) {
	rec := stepRecord{Success: res.Success, Error: res.Error}
	if res.Success {
		data, err := msgpack.Marshal(res.Data)
		if err != nil {
			return nil, fmt.Errorf("encode step data: %w", err)
		}
		rec.Data = data
	}
	return msgpack.Marshal(&rec)
}

func decodeResult[T any](raw []byte) (StepResult[T], error) {
	var res StepResult[T]
	var rec stepRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return res, fmt.Errorf("decode step record: %w", err)
	}
	res.Success = rec.Success
	res.Error = rec.Error
	if rec.Success && len(rec.Data) > 0 {
		if err := msgpack.Unmarshal(rec.Data, &res.Data); err != nil {
			return res, fmt.Errorf("decode step data: %w", err)
		}
	}
	return res, nil
}

// DecodeCheckpoint decodes the envelope of a checkpoint without knowing
// the step's result type. Data is returned as generic msgpack values.
func DecodeCheckpoint(raw []byte) (StepResult[any], error) {
	return decodeResult[any](raw)
}
