// Copyright (c) 2025 BVK Chaitanya

package records

import (
	"encoding/json"
)

type KeyValue struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type TelegramState struct {
	UserChatIDMap map[string]int64 `json:"user_chat_id_map"`
}

// Clone returns a deep copy of the input value through a json round trip.
func Clone[PT *T, T any](v PT) (PT, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	x := new(T)
	if err := json.Unmarshal(data, x); err != nil {
		return nil, err
	}
	return x, nil
}
