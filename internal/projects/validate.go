package projects

import (
	"github.com/go-playground/validator/v10"

	"github.com/JaimeStill/mrv/pkg/problem"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateCommand(cmd any) error {
	if err := validate.Struct(cmd); err != nil {
		return problem.FromValidator(err)
	}
	return nil
}
