package mcpserver

import "testing"

func FuzzValidateRepositoryURL(f *testing.F) {
	f.Add("")
	f.Add("https://github.com/acme/payments.git")
	f.Add("git@github.com:acme/payments.git")
	f.Add("--upload-pack=/bin/sh")
	f.Add("url/with\x00null")
	f.Add(string(make([]byte, 4096)))

	f.Fuzz(func(t *testing.T, input string) {
		// ValidateRepositoryURL should never panic on any input.
		ValidateRepositoryURL(input) //nolint:errcheck // fuzz: testing crash-freedom
	})
}

func FuzzValidateBranch(f *testing.F) {
	f.Add("")
	f.Add("main")
	f.Add("release/2024.1")
	f.Add("-force")
	f.Add("branch/with\x00null")
	f.Add("a..b@{now}")

	f.Fuzz(func(t *testing.T, input string) {
		// ValidateBranch should never panic on any input.
		ValidateBranch(input) //nolint:errcheck // fuzz: testing crash-freedom
	})
}
