package telemetry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"sysroot-txn/internal/types"
)

func TestMetricsRecordTransaction(t *testing.T) {
	m := NewMetrics("")
	m.RecordTransaction(types.TransactionKindDeploy, nil, time.Second)
	m.RecordTransaction(types.TransactionKindDeploy, errors.New("boom"), time.Second)
	m.RecordTransaction(types.TransactionKindRollback, context.Canceled, time.Millisecond)
	m.RecordDeployment()
	m.RecordImportedPackages(3)
	m.RecordImportedPackages(0)

	require.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("deploy", StatusSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("deploy", StatusFailure)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("rollback", StatusCancelled)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.deployments))
	require.Equal(t, 3.0, testutil.ToFloat64(m.importedPackages))
	require.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func TestMetricsWriteTextfile(t *testing.T) {
	m := NewMetrics("test")
	m.RecordTransaction(types.TransactionKindCleanup, nil, time.Second)
	path := filepath.Join(t.TempDir(), "sysroot-txn.prom")

	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `test_transactions_total{kind="cleanup",status="success"} 1`)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordTransaction(types.TransactionKindDeploy, nil, time.Second)
	m.RecordDeployment()
	m.RecordImportedPackages(1)
	require.Nil(t, m.Registry())
	require.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}
