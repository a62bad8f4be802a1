package ports

import "context"

type RebooterPort interface {
	Reboot(ctx context.Context) error
}
