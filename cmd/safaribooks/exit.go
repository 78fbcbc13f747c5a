package main

// desiredExitCode is set by a command's RunE before returning, so main can
// exit with a precise code (0 success, 1 auth failure, 2 config/input error,
// 3 partial success, 130 interrupted) rather than cobra's blanket 1-on-error.
var desiredExitCode int

func exitWith(code int) {
	desiredExitCode = code
}
