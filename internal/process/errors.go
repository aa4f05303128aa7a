package process

import "errors"

var (
	// ErrEmptyCommand is returned when a command has no executable path.
	ErrEmptyCommand = errors.New("empty command")
	// ErrKilled is returned by Wait when the process was terminated by the controller.
	ErrKilled = errors.New("process killed")
	// ErrCleared is returned by Spawn when Clear ran while the process was starting.
	ErrCleared = errors.New("process cleared while starting")
)
