package domain

import (
	"fmt"
	"strings"
)

type IdleReason uint8

const (
	IdleNone     IdleReason = 0
	IdleRead     IdleReason = 1 << 0
	IdlePong     IdleReason = 1 << 1
	IdleDisabled IdleReason = 1 << 7 // timeout<=0 のとき
)

func (r IdleReason) Has(x IdleReason) bool { return r&x != 0 }

func (r IdleReason) String() string {
	switch r {
	case IdleNone:
		return "none"
	case IdleDisabled:
		return "disabled"
	}
	var parts []string
	if r.Has(IdleRead) {
		parts = append(parts, "read")
	}
	if r.Has(IdlePong) {
		parts = append(parts, "pong")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("unknown(%d)", r)
	}
	return strings.Join(parts, "|")
}
