package adapters

import (
	"context"
	"os/exec"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/shared"
)

var defaultRebootCommand = []string{"systemctl", "reboot"}

// CommandRebooter triggers a reboot by running a configured command.
type CommandRebooter struct {
	Command []string
}

func NewCommandRebooter(command []string) CommandRebooter {
	command = shared.TrimNonEmpty(command)
	if len(command) == 0 {
		command = defaultRebootCommand
	}
	return CommandRebooter{Command: command}
}

func (r CommandRebooter) Reboot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(r.Command) == 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("reboot command is empty")
	}
	log.Ctx(ctx).Info().Str("command", strings.Join(r.Command, " ")).Msg("initiating reboot")
	cmd := exec.CommandContext(ctx, r.Command[0], r.Command[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("reboot command failed").
			WithCause(shared.CommandError(output, err))
	}
	return nil
}

var _ ports.RebooterPort = CommandRebooter{}
