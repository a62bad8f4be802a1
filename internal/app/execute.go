package app

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"sysroot-txn/internal/adapters"
	"sysroot-txn/internal/ports"
)

// Execute runs one transaction to completion. Runs against the same
// Service are serialized.
func (s *Service) Execute(ctx context.Context, run *Run, sink ports.ProgressSink) (Result, error) {
	if run == nil || run.Transaction == nil {
		return Result{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("transaction is required")
	}
	if !run.started.CompareAndSwap(false, true) {
		return Result{}, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("transaction %s was already executed", run.ID))
	}
	defer func() {
		if err := run.Finalize(); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("transaction", run.ID).Msg("failed to release transaction resources")
		}
	}()
	if sink == nil {
		sink = adapters.NopSink{}
	}

	kind := run.Transaction.Kind()
	logger := log.With().Str("transaction", run.ID).Str("kind", string(kind)).Logger()
	ctx = logger.WithContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	var (
		result Result
		err    error
	)
	switch tx := run.Transaction.(type) {
	case DeployTransaction:
		result, err = s.executeDeploy(ctx, tx, sink)
	case RollbackTransaction:
		result, err = s.executeRollback(ctx, tx, sink)
	case PackageDiffTransaction:
		result, err = s.executePackageDiff(ctx, tx, sink)
	case InitramfsStateTransaction:
		result, err = s.executeInitramfsState(ctx, tx, sink)
	case CleanupTransaction:
		result, err = s.executeCleanup(ctx, tx, sink)
	case RefreshMetadataTransaction:
		result, err = s.executeRefreshMetadata(ctx, tx, sink)
	case KernelArgTransaction:
		result, err = s.executeKernelArg(ctx, tx, sink)
	default:
		err = errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("unsupported transaction type %T", tx))
	}
	result.ID = run.ID
	result.Kind = kind

	s.Metrics.RecordTransaction(kind, err, s.now().Sub(start))
	if result.Deployed {
		s.Metrics.RecordDeployment()
	}
	if writeErr := s.Metrics.WriteTextfile(s.MetricsTextfile); writeErr != nil {
		logger.Warn().Err(writeErr).Msg("metrics not exported")
	}
	if err != nil {
		logger.Debug().Err(err).Msg("transaction failed")
		return result, err
	}
	logger.Debug().
		Str("title", result.Title).
		Bool("changed", result.Changed).
		Bool("deployed", result.Deployed).
		Msg("transaction complete")
	return result, nil
}

// reboot requests a reboot after a committed deployment. A failure is
// reported through the sink and the result, never returned as an error.
func (s *Service) reboot(ctx context.Context, sink ports.ProgressSink, result *Result) {
	if s.Rebooter == nil {
		result.RebootErr = errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("no rebooter configured")
	} else {
		result.RebootErr = s.Rebooter.Reboot(ctx)
	}
	if result.RebootErr != nil {
		log.Ctx(ctx).Warn().Err(result.RebootErr).Msg("reboot request failed")
		sink.Message(fmt.Sprintf("Failed to initiate reboot: %v", result.RebootErr))
	}
}
