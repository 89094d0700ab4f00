// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"encoding/json"
	"os"

	"github.com/bvk/gridbot/htx"
	"github.com/bvk/gridbot/pushover"
	"github.com/bvk/gridbot/telegram"
)

type Secrets struct {
	HTX      *htx.Credentials  `json:"htx,omitempty"`
	Pushover *pushover.Keys    `json:"pushover,omitempty"`
	Telegram *telegram.Secrets `json:"telegram,omitempty"`
}

func SecretsFromFile(fpath string) (*Secrets, error) {
	data, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}
	s := new(Secrets)
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// SaveFile writes the secrets to a file that is readable by the owner only.
func (v *Secrets) SaveFile(fpath string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fpath, data, 0600)
}

func (v *Secrets) Check() error {
	if v.HTX != nil {
		if err := v.HTX.Check(); err != nil {
			return err
		}
	}
	if v.Telegram != nil {
		if err := v.Telegram.Check(); err != nil {
			return err
		}
	}
	if v.Pushover != nil {
		if err := v.Pushover.Check(); err != nil {
			return err
		}
	}
	return nil
}
