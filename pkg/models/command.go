package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Command names an automation workflow runnable inside a session
type Command string

const (
	CmdEmptyCart         Command = "empty-cart"
	CmdAddToCart         Command = "add-to-cart"
	CmdCampCheckout      Command = "camp-checkout"
	CmdCreateNetsafe     Command = "create-netsafe"
	CmdUpdateProfileAuto Command = "update-profile-auto"
)

// Valid reports whether c is a known command
func (c Command) Valid() bool {
	switch c {
	case CmdEmptyCart, CmdAddToCart, CmdCampCheckout, CmdCreateNetsafe, CmdUpdateProfileAuto:
		return true
	}
	return false
}

// RunRequest is the payload for dispatching a command to a session
type RunRequest struct {
	SessionID string          `json:"sessionId"`
	Command   Command         `json:"command"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StopRequest is the payload for stopping a session's automation
type StopRequest struct {
	SessionID string `json:"sessionId"`
}

// FlexInt accepts both JSON numbers and numeric strings
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		*f = 0
		return nil
	}
	*f = FlexInt(n)
	return nil
}

// NetsafeConfig parameterizes a card-generation job
type NetsafeConfig struct {
	Count           FlexInt `json:"count"`
	Amount          string  `json:"amount"`
	Username        string  `json:"username,omitempty"`
	Password        string  `json:"password,omitempty"`
	CardholderName  string  `json:"cardholderName,omitempty"`
	BeneficiaryName string  `json:"beneficiaryName,omitempty"`
	Email           string  `json:"email,omitempty"`
	ConfirmEmail    string  `json:"confirmEmail,omitempty"`
	Mobile          string  `json:"mobile,omitempty"`
	ConfirmMobile   string  `json:"confirmMobile,omitempty"`
	Message         string  `json:"message,omitempty"`
	CardPassword    string  `json:"cardPassword,omitempty"`
}

// Target returns the number of cards to generate, at least one
func (c NetsafeConfig) Target() int {
	if c.Count < 1 {
		return 1
	}
	return int(c.Count)
}

// AddToCartData is the payload of the add-to-cart command
type AddToCartData struct {
	URL string `json:"url"`
}

// ProfileData is the payload of the update-profile-auto command
type ProfileData struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name,omitempty"`
	Mobile   string `json:"mobile,omitempty"`
	Pincode  string `json:"pincode,omitempty"`
	Address  string `json:"address,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
}
