package executor

import "github.com/SimonWaldherr/tinysql-core/internal/dberr"

func ambiguousErr(name string) error {
	return dberr.New(dberr.KindSchema, "ambiguous column reference %q", name)
}

func unknownColumnErr(name string) error {
	return dberr.New(dberr.KindSchema, "unknown column %q", name)
}

func unknownTableErr(name string) error {
	return dberr.New(dberr.KindSchema, "no such table %q", name)
}

func typeErr(format string, args ...any) error {
	return dberr.New(dberr.KindType, format, args...)
}
