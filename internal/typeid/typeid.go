package typeid

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

const (
	PrefixUser     = "user"
	PrefixProject  = "proj"
	PrefixTask     = "task"
	PrefixEvent    = "evt"
	PrefixActivity = "act"
)

func New(prefix string) string {
	id := typeid.MustGenerate(prefix)
	return id.String()
}

func NewUserID() string     { return New(PrefixUser) }
func NewProjectID() string  { return New(PrefixProject) }
func NewTaskID() string     { return New(PrefixTask) }
func NewEventID() string    { return New(PrefixEvent) }
func NewActivityID() string { return New(PrefixActivity) }

func Validate(id, expectedPrefix string) error {
	parsed, err := typeid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid typeid %q: %w", id, err)
	}
	if parsed.Prefix() != expectedPrefix {
		return fmt.Errorf("expected prefix %q but got %q in id %q", expectedPrefix, parsed.Prefix(), id)
	}
	return nil
}
