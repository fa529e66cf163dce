package azuresql

import (
	"database/sql/driver"
	"errors"

	"github.com/cortexai/finops-insight/internal/errs"
)

// sqlErrorNumber is implemented by mssql.Error
type sqlErrorNumber interface {
	SQLErrorNumber() int32
}

var permissionErrors = map[int32]bool{
	229:   true, // permission denied on object
	230:   true, // permission denied on column
	262:   true, // permission denied in database
	297:   true,
	300:   true, // VIEW DATABASE STATE / VIEW SERVER STATE
	916:   true, // principal cannot access database
	18456: true, // login failed
}

var syntaxErrors = map[int32]bool{
	102:  true,
	105:  true,
	156:  true,
	170:  true,
	207:  true, // invalid column
	208:  true, // invalid object
	4104: true, // multi-part identifier could not be bound
}

// classify maps driver failures onto the error taxonomy. Syntax errors are
// only the caller's fault when the caller supplied the statement.
func classify(op string, err error, callerSQL bool) error {
	if errs.IsContext(err) {
		return errs.Timeout(op, err)
	}
	var num sqlErrorNumber
	if errors.As(err, &num) {
		n := num.SQLErrorNumber()
		switch {
		case permissionErrors[n]:
			return errs.Wrap(errs.KindPermissionDenied, op, err, "access denied by Azure SQL")
		case callerSQL && syntaxErrors[n]:
			return errs.Wrap(errs.KindInvalidQuery, op, err, "statement rejected by Azure SQL")
		}
	}
	if errors.Is(err, driver.ErrBadConn) {
		return errs.Wrap(errs.KindBackendUnavailable, op, err, "Azure SQL connection lost")
	}
	return errs.Wrap(errs.KindBackendUnavailable, op, err, "Azure SQL request failed")
}
