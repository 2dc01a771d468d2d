package settings

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

func valueRow(value string) pgx.Row {
	return rowFunc(func(dest ...any) error {
		*(dest[0].(*string)) = value
		return nil
	})
}

func noRows() pgx.Row {
	return rowFunc(func(...any) error { return pgx.ErrNoRows })
}

type execCall struct {
	sql  string
	args []any
}

type mockTx struct {
	selectRow  pgx.Row
	execs      []execCall
	committed  bool
	rolledBack bool
}

func (t *mockTx) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return t.selectRow
}

func (t *mockTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *mockTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *mockTx) Rollback(context.Context) error { t.rolledBack = true; return nil }

type mockDB struct {
	row pgx.Row
	tx  *mockTx
}

func (d *mockDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row { return d.row }
func (d *mockDB) Begin(context.Context) (Tx, error)                      { return d.tx, nil }

func TestService_Get(t *testing.T) {
	tests := []struct {
		name    string
		row     pgx.Row
		env     map[string]string
		want    string
		wantErr error
	}{
		{
			name: "value_from_database",
			row:  valueRow("123456"),
			want: "123456",
		},
		{
			name: "env_fallback_when_missing",
			row:  noRows(),
			env:  map[string]string{"SETTINGS_MANAGER_TELEGRAM_USER_ID": "777"},
			want: "777",
		},
		{
			name:    "not_found_anywhere",
			row:     noRows(),
			wantErr: ErrSettingNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			svc := &Service{db: &mockDB{row: tt.row}}

			got, err := svc.Get(context.Background(), "manager", "telegram_user_id")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_Get_EnvKeyNormalization(t *testing.T) {
	// Дефисы в категории и ключе превращаются в подчёркивания.
	t.Setenv("SETTINGS_BOT_API_RATE_LIMIT", "50")
	svc := &Service{db: &mockDB{row: noRows()}}

	got, err := svc.Get(context.Background(), "bot-api", "rate-limit")
	require.NoError(t, err)
	assert.Equal(t, "50", got)
}

func TestService_Set_AppendsAuditWithPreviousValue(t *testing.T) {
	tx := &mockTx{selectRow: valueRow("old-chat")}
	svc := &Service{db: &mockDB{tx: tx}}

	require.NoError(t, svc.Set(context.Background(), "manager", "telegram_user_id", "new-chat", "boss"))

	// Upsert значения и дозапись в журнал идут в одной транзакции.
	require.Len(t, tx.execs, 2)
	assert.Contains(t, tx.execs[0].sql, "INSERT INTO bot_settings")
	assert.Contains(t, tx.execs[1].sql, "INSERT INTO settings_audit")

	audit := tx.execs[1].args
	assert.Equal(t, "manager", audit[0])
	assert.Equal(t, "telegram_user_id", audit[1])
	assert.Equal(t, "old-chat", audit[2], "в журнал попадает прежнее значение")
	assert.Equal(t, "new-chat", audit[3])
	assert.Equal(t, "boss", audit[4])

	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestService_Set_FreshKeyAuditsEmptyPrevious(t *testing.T) {
	tx := &mockTx{selectRow: noRows()}
	svc := &Service{db: &mockDB{tx: tx}}

	require.NoError(t, svc.Set(context.Background(), "manager", "greeting", "Добрый день", "boss"))

	require.Len(t, tx.execs, 2)
	assert.Equal(t, "", tx.execs[1].args[2], "у новой настройки нет прежнего значения")
	assert.True(t, tx.committed)
}
