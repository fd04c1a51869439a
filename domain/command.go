package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"group-chat/errors"
)

var validate = validator.New()

// CreateGroupCommand carries the caller-supplied input of CreateGroup.
type CreateGroupCommand struct {
	OwnerID    string    `validate:"required"`
	Name       string    `validate:"required,max=120"`
	Type       GroupType `validate:"required,oneof=public private"`
	MaxMembers *int      `validate:"omitempty,gte=2"`
}

// Validate rejects unknown group types and capacities below two.
func (c CreateGroupCommand) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	return nil
}
