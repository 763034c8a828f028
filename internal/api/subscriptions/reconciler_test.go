package subscriptions

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"chainbill-backend/internal/apperr"
	"chainbill-backend/internal/testutils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail   = "alice@example.com"
	testUserID  = "user-uuid"
	testProject = "project-uuid"
	testPlanID  = "plan-uuid"
	testDevID   = "dev-uuid"
	testManager = "0x11aabbccddeeff11223344556677889900aabbcc"
	testToken   = "0x5555555555555555555555555555555555555555"
	testTxHash  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

func TestMain(m *testing.M) {
	testutils.InitTestMain()

	log.SetOutput(io.Discard)
	exitCode := m.Run()
	log.SetOutput(os.Stdout)

	os.Exit(exitCode)
}

type stubVerifier struct {
	err   error
	calls int
}

func (s *stubVerifier) VerifyPayment(ctx context.Context, txHash, expectedContract string) error {
	s.calls++
	return s.err
}

func userRows(mock sqlmock.Sqlmock) *sqlmock.Rows {
	return mock.NewRows([]string{"id", "email", "smart_account_address"}).
		AddRow(testUserID, testEmail, "0x9999999999999999999999999999999999999999")
}

func projectRows(mock sqlmock.Sqlmock) *sqlmock.Rows {
	return mock.NewRows([]string{"id", "developer_id", "subscription_manager_address", "token_address", "token_symbol"}).
		AddRow(testProject, testDevID, testManager, testToken, "USDC")
}

func planRows(mock sqlmock.Sqlmock) *sqlmock.Rows {
	return mock.NewRows([]string{"id", "project_id", "contract_plan_id", "amount", "token_address", "token_symbol", "period_days", "active"}).
		AddRow(testPlanID, testProject, 7, 10.0, testToken, "USDC", 30, true)
}

func expectUserLookup(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = \$1`).
		WithArgs(testEmail, 1).
		WillReturnRows(userRows(mock))
}

func TestReconcile_IdempotentOnTxHash(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()
	v := &stubVerifier{}
	Init(v)

	expectUserLookup(mock)
	mock.ExpectQuery(`SELECT \* FROM "payment_records" WHERE tx_hash = \$1`).
		WithArgs(testTxHash, 1).
		WillReturnRows(mock.NewRows([]string{"id", "subscription_id", "user_id", "tx_hash"}).
			AddRow("payment-uuid", "sub-uuid", testUserID, testTxHash))

	res, err := Reconcile(context.Background(), ReconcileInput{
		UserEmail:      testEmail,
		ProjectID:      testProject,
		ContractPlanID: 7,
		TxHash:         testTxHash,
	})
	require.NoError(t, err)
	assert.Equal(t, "sub-uuid", res.SubscriptionID)
	assert.Equal(t, "payment-uuid", res.PaymentID)
	assert.Zero(t, v.calls, "a replayed hash must not trigger a second receipt lookup")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_UnknownUser(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()
	Init(&stubVerifier{})

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = \$1`).
		WithArgs(testEmail, 1).
		WillReturnRows(mock.NewRows([]string{"id"}))

	_, err := Reconcile(context.Background(), ReconcileInput{
		UserEmail:      testEmail,
		ProjectID:      testProject,
		ContractPlanID: 7,
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestReconcile_TokenMismatchRejected(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()
	Init(&stubVerifier{})

	expectUserLookup(mock)
	mock.ExpectQuery(`SELECT \* FROM "projects" WHERE id = \$1`).
		WithArgs(testProject, 1).
		WillReturnRows(projectRows(mock))
	mock.ExpectQuery(`SELECT \* FROM "plans" WHERE contract_plan_id = \$1 AND project_id = \$2`).
		WithArgs(7, testProject, 1).
		WillReturnRows(planRows(mock))

	_, err := Reconcile(context.Background(), ReconcileInput{
		UserEmail:      testEmail,
		ProjectID:      testProject,
		ContractPlanID: 7,
		TokenAddress:   "0x0000000000000000000000000000000000000bad",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestReconcile_VerificationFailureCreatesNothing(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()
	v := &stubVerifier{err: errors.New("zero logs")}
	Init(v)

	expectUserLookup(mock)
	mock.ExpectQuery(`SELECT \* FROM "payment_records" WHERE tx_hash = \$1`).
		WithArgs(testTxHash, 1).
		WillReturnRows(mock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "projects" WHERE id = \$1`).
		WithArgs(testProject, 1).
		WillReturnRows(projectRows(mock))
	mock.ExpectQuery(`SELECT \* FROM "plans" WHERE contract_plan_id = \$1 AND project_id = \$2`).
		WithArgs(7, testProject, 1).
		WillReturnRows(planRows(mock))

	_, err := Reconcile(context.Background(), ReconcileInput{
		UserEmail:      testEmail,
		ProjectID:      testProject,
		ContractPlanID: 7,
		TxHash:         testTxHash,
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindVerification))
	assert.Equal(t, 1, v.calls)
	// No insert expectations were registered; any write would fail the mock.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_ConflictOnActiveTriple(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()
	Init(&stubVerifier{})

	now := time.Now()
	expectUserLookup(mock)
	mock.ExpectQuery(`SELECT \* FROM "projects" WHERE id = \$1`).
		WithArgs(testProject, 1).
		WillReturnRows(projectRows(mock))
	mock.ExpectQuery(`SELECT \* FROM "plans" WHERE contract_plan_id = \$1 AND project_id = \$2`).
		WithArgs(7, testProject, 1).
		WillReturnRows(planRows(mock))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions" WHERE user_id = \$1 AND plan_id = \$2 AND subscription_manager_address = \$3`).
		WithArgs(testUserID, testPlanID, testManager).
		WillReturnRows(mock.NewRows([]string{"id", "user_id", "plan_id", "status", "next_payment_date", "subscription_manager_address"}).
			AddRow("sub-live", testUserID, testPlanID, "active", now.AddDate(0, 0, 20), testManager))

	_, err := Reconcile(context.Background(), ReconcileInput{
		UserEmail:      testEmail,
		ProjectID:      testProject,
		ContractPlanID: 7,
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestReconcile_LapsedActiveRowDoesNotBlock(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()
	Init(&stubVerifier{})

	now := time.Now()
	expectUserLookup(mock)
	mock.ExpectQuery(`SELECT \* FROM "projects" WHERE id = \$1`).
		WithArgs(testProject, 1).
		WillReturnRows(projectRows(mock))
	mock.ExpectQuery(`SELECT \* FROM "plans" WHERE contract_plan_id = \$1 AND project_id = \$2`).
		WithArgs(7, testProject, 1).
		WillReturnRows(planRows(mock))
	// Stored "active" but its period lapsed months ago: derivation says
	// expired, so a fresh signup goes through.
	mock.ExpectQuery(`SELECT \* FROM "subscriptions" WHERE user_id = \$1 AND plan_id = \$2 AND subscription_manager_address = \$3`).
		WithArgs(testUserID, testPlanID, testManager).
		WillReturnRows(mock.NewRows([]string{"id", "user_id", "plan_id", "status", "next_payment_date", "subscription_manager_address"}).
			AddRow("sub-stale", testUserID, testPlanID, "active", now.AddDate(0, -3, 0), testManager))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "subscriptions" (.+) RETURNING "id"`).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow("sub-new"))
	mock.ExpectCommit()

	res, err := Reconcile(context.Background(), ReconcileInput{
		UserEmail:      testEmail,
		ProjectID:      testProject,
		ContractPlanID: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, "sub-new", res.SubscriptionID)
	assert.Empty(t, res.PaymentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_SuccessWithPaymentRecord(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()
	v := &stubVerifier{}
	Init(v)

	expectUserLookup(mock)
	mock.ExpectQuery(`SELECT \* FROM "payment_records" WHERE tx_hash = \$1`).
		WithArgs(testTxHash, 1).
		WillReturnRows(mock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "projects" WHERE id = \$1`).
		WithArgs(testProject, 1).
		WillReturnRows(projectRows(mock))
	mock.ExpectQuery(`SELECT \* FROM "plans" WHERE contract_plan_id = \$1 AND project_id = \$2`).
		WithArgs(7, testProject, 1).
		WillReturnRows(planRows(mock))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions" WHERE user_id = \$1 AND plan_id = \$2 AND subscription_manager_address = \$3`).
		WithArgs(testUserID, testPlanID, testManager).
		WillReturnRows(mock.NewRows([]string{"id"}))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "subscriptions" (.+) RETURNING "id"`).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow("sub-new"))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "payment_records" (.+) RETURNING "id"`).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow("payment-new"))
	mock.ExpectCommit()

	res, err := Reconcile(context.Background(), ReconcileInput{
		UserEmail:      testEmail,
		ProjectID:      testProject,
		ContractPlanID: 7,
		TxHash:         testTxHash,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v.calls)
	assert.Equal(t, "sub-new", res.SubscriptionID)
	assert.Equal(t, "payment-new", res.PaymentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancel_LookupFailureIsUpstreamNotMissing(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	expectUserLookup(mock)
	mock.ExpectQuery(`SELECT \* FROM "plans" WHERE contract_plan_id = \$1 AND project_id = \$2`).
		WithArgs(7, testProject, 1).
		WillReturnRows(planRows(mock))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions" WHERE user_id = \$1 AND plan_id = \$2`).
		WithArgs(testUserID, testPlanID).
		WillReturnError(errors.New("connection refused"))

	_, err := Cancel(context.Background(), CancelInput{
		UserEmail:      testEmail,
		ProjectID:      testProject,
		ContractPlanID: 7,
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUpstream))
	assert.False(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestCancel_NothingToCancel(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	expectUserLookup(mock)
	mock.ExpectQuery(`SELECT \* FROM "plans" WHERE contract_plan_id = \$1 AND project_id = \$2`).
		WithArgs(7, testProject, 1).
		WillReturnRows(planRows(mock))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions" WHERE user_id = \$1 AND plan_id = \$2`).
		WithArgs(testUserID, testPlanID).
		WillReturnRows(mock.NewRows([]string{"id"}))

	_, err := Cancel(context.Background(), CancelInput{
		UserEmail:      testEmail,
		ProjectID:      testProject,
		ContractPlanID: 7,
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestCancel_EffectiveAtPeriodEnd(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	now := time.Now()
	periodEnd := now.AddDate(0, 0, 12)

	expectUserLookup(mock)
	mock.ExpectQuery(`SELECT \* FROM "plans" WHERE contract_plan_id = \$1 AND project_id = \$2`).
		WithArgs(7, testProject, 1).
		WillReturnRows(planRows(mock))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions" WHERE user_id = \$1 AND plan_id = \$2`).
		WithArgs(testUserID, testPlanID).
		WillReturnRows(mock.NewRows([]string{"id", "user_id", "plan_id", "status", "next_payment_date", "subscription_manager_address"}).
			AddRow("sub-live", testUserID, testPlanID, "active", periodEnd, testManager))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "subscriptions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "delegations" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := Cancel(context.Background(), CancelInput{
		UserEmail:      testEmail,
		ProjectID:      testProject,
		ContractPlanID: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, "sub-live", res.SubscriptionID)
	assert.WithinDuration(t, periodEnd, res.CancellationEffectiveAt, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}
