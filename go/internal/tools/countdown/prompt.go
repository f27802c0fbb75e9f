package main

import (
	"errors"
	"net/mail"

	"github.com/charmbracelet/huh"
	"github.com/mcdev12/finoxa/go/internal/cooldown"
)

func promptOptions(opts *options) error {
	if opts.flow == "" {
		opts.flow = string(cooldown.FlowSignup)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Flow").
				Description("Which email is being resent").
				Options(
					huh.NewOption("Sign up verification", string(cooldown.FlowSignup)),
					huh.NewOption("Login verification", string(cooldown.FlowLogin)),
					huh.NewOption("Password reset", string(cooldown.FlowResetPassword)),
				).
				Value(&opts.flow),

			huh.NewInput().
				Title("Email").
				Description("Address the email goes to").
				Validate(validateEmail).
				Value(&opts.email),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Resend the email if no cooldown is running?").
				Value(&opts.resend),
		),
	)

	return form.Run()
}

func validateEmail(s string) error {
	if s == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return errors.New("not a valid email address")
	}
	return nil
}
