package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JaimeStill/loam/pkg/repository"
)

var (
	errNotFound  = errors.New("not found")
	errDuplicate = errors.New("duplicate")
	errInvalid   = errors.New("invalid")
)

func TestMapError(t *testing.T) {
	other := errors.New("some other error")
	fk := &pgconn.PgError{Code: "23503"}
	check := &pgconn.PgError{Code: "23514"}

	tests := []struct {
		name    string
		err     error
		invalid []error
		want    error
	}{
		{"nil", nil, nil, nil},
		{"no rows", sql.ErrNoRows, nil, errNotFound},
		{"wrapped no rows", errors.Join(errors.New("scan"), sql.ErrNoRows), nil, errNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, nil, errDuplicate},
		{"check violation mapped", check, []error{errInvalid}, errInvalid},
		{"check violation without mapping", check, nil, check},
		{"foreign key passes through", fk, nil, fk},
		{"plain error passes through", other, nil, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := repository.MapError(tt.err, errNotFound, errDuplicate, tt.invalid...)
			if got != tt.want {
				t.Errorf("MapError() = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeResult struct {
	affected int64
	err      error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, r.err }

type fakeExecutor struct {
	query  string
	args   []any
	result sql.Result
	err    error
}

func (e *fakeExecutor) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	e.query = query
	e.args = args
	return e.result, e.err
}

func TestExec(t *testing.T) {
	t.Run("reports rows affected", func(t *testing.T) {
		e := &fakeExecutor{result: fakeResult{affected: 3}}
		n, err := repository.Exec(context.Background(), e, "DELETE FROM t WHERE id = $1", 7)
		if err != nil {
			t.Fatalf("Exec() error = %v", err)
		}
		if n != 3 {
			t.Errorf("rows: got %d, want 3", n)
		}
		if len(e.args) != 1 || e.args[0] != 7 {
			t.Errorf("args: got %v, want [7]", e.args)
		}
	})

	t.Run("exec error", func(t *testing.T) {
		boom := errors.New("boom")
		e := &fakeExecutor{err: boom}
		if _, err := repository.Exec(context.Background(), e, "DELETE FROM t"); !errors.Is(err, boom) {
			t.Errorf("Exec() error = %v, want boom", err)
		}
	})

	t.Run("rows affected error", func(t *testing.T) {
		unsupported := errors.New("unsupported")
		e := &fakeExecutor{result: fakeResult{err: unsupported}}
		if _, err := repository.Exec(context.Background(), e, "DELETE FROM t"); !errors.Is(err, unsupported) {
			t.Errorf("Exec() error = %v, want unsupported", err)
		}
	})
}
